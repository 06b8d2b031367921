package locale

import (
	"strings"
	"testing"
)

func TestRenderDefaultLocale(t *testing.T) {
	t.Parallel()
	l, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := l.Render(KeyNewRelease, "", "Berserk", "Ch.102", "MangaUpdates")
	if !strings.Contains(got, "Berserk") || !strings.Contains(got, "Ch.102") {
		t.Fatalf("unexpected render: %q", got)
	}
}

func TestResolveVariants(t *testing.T) {
	t.Parallel()
	l, err := New("en-US")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		pref string
		want string
	}{
		{pref: "", want: "en-US"},
		{pref: "pt-BR", want: "pt-BR"},
		{pref: "pt", want: "pt-BR"},
		{pref: "es", want: "es-ES"},
		{pref: "definitely-not-a-tag!!", want: "en-US"},
		{pref: "ja-JP", want: "en-US"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.pref, func(t *testing.T) {
			if got := l.Resolve(tt.pref); got != tt.want {
				t.Fatalf("Resolve(%q) = %q, want %q", tt.pref, got, tt.want)
			}
		})
	}
}

func TestRenderLocalizedCatalogs(t *testing.T) {
	t.Parallel()
	l, err := New("en-US")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pt := l.Render(KeyReadOnline, "pt-BR", "https://example.org")
	if !strings.Contains(pt, "Leia online") {
		t.Fatalf("unexpected pt-BR render: %q", pt)
	}
	es := l.Render(KeyChannelHint, "es-ES", "/channel")
	if !strings.Contains(es, "/channel") {
		t.Fatalf("hint must carry the command: %q", es)
	}
}

func TestRenderUnknownKeyFallsBack(t *testing.T) {
	t.Parallel()
	l, err := New("en-US")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := l.Render("no.such.key", "pt-BR"); got != "no.such.key" {
		t.Fatalf("expected bare key, got %q", got)
	}
}

func TestNewRejectsUnknownDefault(t *testing.T) {
	t.Parallel()
	if _, err := New("zz-ZZ"); err == nil {
		t.Fatal("expected error for unknown default tag")
	}
}
