package langfile

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseBasic(t *testing.T) {
	f, err := Parse([]byte("tile.stone.name=Stone\nitem.wrench.name=Wrench\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := f.Get("tile.stone.name"); got != "Stone" {
		t.Errorf("tile.stone.name = %q, want Stone", got)
	}
	if want := []string{"tile.stone.name", "item.wrench.name"}; !reflect.DeepEqual(f.Keys(), want) {
		t.Errorf("Keys() = %v, want %v", f.Keys(), want)
	}
}

func TestParseColonIsNotSeparator(t *testing.T) {
	f, err := Parse([]byte("gui.mymod:title=Settings: Advanced\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := f.Get("gui.mymod:title"); !ok || got != "Settings: Advanced" {
		t.Errorf("Get = %q, %v", got, ok)
	}
}

func TestParseValueWithEquals(t *testing.T) {
	f, err := Parse([]byte("tooltip.formula=E=mc²\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := f.Get("tooltip.formula"); got != "E=mc²" {
		t.Errorf("tooltip.formula = %q", got)
	}
}

func TestParseCommentsBOMAndMalformed(t *testing.T) {
	data := []byte("\uFEFF#PARSE_ESCAPES\r\n# Blocks\r\n\r\nnot an entry\r\nkey=value\r\nkey=override\r\n")
	f, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Keys()) != 1 {
		t.Fatalf("expected 1 key, got %v", f.Keys())
	}
	if got, _ := f.Get("key"); got != "override" {
		t.Errorf("duplicate key should keep the last value, got %q", got)
	}
	want := "#PARSE_ESCAPES\n# Blocks\n\nnot an entry\nkey=override\n"
	if got := string(f.Marshal()); got != want {
		t.Errorf("Marshal() = %q, want %q", got, want)
	}
}

func TestMarshalPreservesLayout(t *testing.T) {
	src := "# header\n\nkey=value\n"
	f, err := Parse([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(f.Marshal()); got != src {
		t.Errorf("round-trip failed:\ngot:  %q\nwant: %q", got, src)
	}
}

func TestAddOverwritesInPlace(t *testing.T) {
	f, _ := Parse([]byte("# Items\na=hello\nb=world\n"))
	f.Add("a", "привет")
	f.Add("c", "снова")
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(f.Keys(), want) {
		t.Fatalf("Keys() = %v, want %v", f.Keys(), want)
	}
	if got := string(f.Marshal()); got != "# Items\na=привет\nb=world\nc=снова\n" {
		t.Errorf("Marshal() = %q", got)
	}
}

func TestWriteAndParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lang", "ru_RU.lang")
	f := New()
	f.Add("a", "1")
	f.Add("b", "2")
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !reflect.DeepEqual(got.Keys(), []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got.Keys())
	}
	if v, ok := got.Get("b"); !ok || v != "2" {
		t.Errorf("Get(b) = %q, %v", v, ok)
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.lang")); err == nil {
		t.Errorf("ParseFile(missing) should fail")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stat: %v", err)
	}
}
