package langmeta

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "zh_cn", want: "zh-CN"},
		{in: " ZH-tw ", want: "zh-TW"},
		{in: "ru", want: "ru"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := canonicalize(tc.in)
		if got != tc.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsSupported(t *testing.T) {
	for _, code := range []string{"en", "ru", "zh-CN", "zh_tw", "iw", "haw", "ceb"} {
		if !IsSupported(code) {
			t.Errorf("IsSupported(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"", "xx", "pt-BR", "he", "zh"} {
		if IsSupported(code) {
			t.Errorf("IsSupported(%q) = true, want false", code)
		}
	}
}

func TestNameAndCJK(t *testing.T) {
	if got := Name("ru"); got != "Russian" {
		t.Fatalf("Name(ru) = %q, want Russian", got)
	}
	if got := Name("zz"); got != "zz" {
		t.Fatalf("Name(zz) = %q, want passthrough", got)
	}
	if !IsCJK("ja") || !IsCJK("zh-CN") {
		t.Fatalf("ja and zh-CN must be CJK")
	}
	if IsCJK("ko") || IsCJK("ru") {
		t.Fatalf("ko and ru must not be CJK")
	}
}

func TestCodesSorted(t *testing.T) {
	codes := Codes()
	if len(codes) != len(Registry) {
		t.Fatalf("Codes() len = %d, want %d", len(codes), len(Registry))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] > codes[i] {
			t.Fatalf("Codes() not sorted at %d: %q > %q", i, codes[i-1], codes[i])
		}
	}
}
