package metadata

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type stubCompleter struct {
	configured bool
	content    string
	err        error
	calls      int
	user       string
}

func (s *stubCompleter) Configured() bool { return s.configured }

func (s *stubCompleter) CompleteJSON(_ context.Context, _ string, user string) (string, error) {
	s.calls++
	s.user = user
	return s.content, s.err
}

func TestGenerateUsesProvider(t *testing.T) {
	stub := &stubCompleter{
		configured: true,
		content: "```json\n" + `{"title":"Turno de noche","summary":"Una enfermera recuerda su primera guardia.",` +
			`"tags":["#Turno de Madrugada","hospital publico","hospital publico","primer trabajo"],"virality_score":"91.6"}` + "\n```",
	}
	res := New(stub, nil).Generate(context.Background(), "hoy les cuento mi primera guardia en el hospital")
	if !res.UsedProvider {
		t.Fatal("expected provider result")
	}
	if res.Title != "Turno de noche" || res.Summary != "Una enfermera recuerda su primera guardia." {
		t.Fatalf("unexpected text %#v", res)
	}
	want := []string{"turno de madrugada", "hospital publico", "primer trabajo"}
	if !reflect.DeepEqual(res.Tags, want) {
		t.Fatalf("tags = %v, want %v", res.Tags, want)
	}
	if res.Score != 92 {
		t.Fatalf("score = %d", res.Score)
	}
	if !strings.HasPrefix(stub.user, "Transcript: hoy les cuento") {
		t.Fatalf("user prompt = %q", stub.user)
	}
}

func TestGenerateTruncatesTranscript(t *testing.T) {
	stub := &stubCompleter{configured: true, content: `{"summary":"ok"}`}
	New(stub, nil).Generate(context.Background(), strings.Repeat("a", MaxTranscriptChars+100))
	if got := len(strings.TrimPrefix(stub.user, "Transcript: ")); got != MaxTranscriptChars {
		t.Fatalf("sent %d chars", got)
	}
}

func TestGenerateFallbacks(t *testing.T) {
	transcript := "una historia sobre mudarse de ciudad"
	tests := []struct {
		name string
		stub *stubCompleter
	}{
		{"nil client", nil},
		{"missing key", &stubCompleter{}},
		{"provider error", &stubCompleter{configured: true, err: errors.New("boom")}},
		{"not json", &stubCompleter{configured: true, content: "lo siento, no puedo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gen *Generator
			if tt.stub == nil {
				gen = New(nil, nil)
			} else {
				gen = New(tt.stub, nil)
			}
			res := gen.Generate(context.Background(), transcript)
			want := Result{Title: DefaultTitle, Summary: transcript, Tags: DefaultTags(), Score: NeutralScore}
			if !reflect.DeepEqual(res, want) {
				t.Fatalf("got %#v, want %#v", res, want)
			}
		})
	}
}

func TestGenerateSkipsProviderWithoutSpeech(t *testing.T) {
	stub := &stubCompleter{configured: true, content: `{"summary":"x"}`}
	gen := New(stub, nil)
	for _, transcript := range []string{"", "   ", "[inaudible]", "Audio vacío."} {
		res := gen.Generate(context.Background(), transcript)
		if res.Summary != SilentSummary || res.UsedProvider {
			t.Fatalf("transcript %q: unexpected %#v", transcript, res)
		}
	}
	if stub.calls != 0 {
		t.Fatalf("provider called %d times", stub.calls)
	}
}

func TestFallbackClipsTranscript(t *testing.T) {
	res := Fallback(strings.Repeat("é", 300))
	if got := len([]rune(res.Summary)); got != fallbackSnippet {
		t.Fatalf("summary has %d runes", got)
	}
}

func TestCleanTags(t *testing.T) {
	clean := []string{"ruptura y duelo", "turno de madrugada", "mudanza"}
	if got := CleanTags(clean); !reflect.DeepEqual(got, clean) {
		t.Fatalf("clean list changed: %v", got)
	}
	if got := CleanTags(CleanTags(clean)); !reflect.DeepEqual(got, clean) {
		t.Fatalf("not idempotent: %v", got)
	}
	if got := CleanTags([]string{"Uno", "UNO", "#uno", " dos "}); !reflect.DeepEqual(got, DefaultTags()) {
		t.Fatalf("expected defaults, got %v", got)
	}
	many := []string{"a a", "b b", "c c", "d d", "e e", "f f", "g g", "h h"}
	if got := CleanTags(many); len(got) != MaxTags {
		t.Fatalf("expected cap at %d, got %v", MaxTags, got)
	}
	if got := CleanTags([]string{"Ñandú Rojo", "ÁRBOL VIEJO", "  mar   abierto "}); !reflect.DeepEqual(got, []string{"ñandú rojo", "árbol viejo", "mar abierto"}) {
		t.Fatalf("unexpected lowercasing %v", got)
	}
}

func TestCleanSummary(t *testing.T) {
	if got := CleanSummary("  "); got != DefaultSummary {
		t.Fatalf("empty summary = %q", got)
	}
	if got := CleanSummary("El audio está vacío o es incomprensible."); got != GenericSummary {
		t.Fatalf("empty-audio summary = %q", got)
	}
	if got := CleanSummary(strings.Repeat("x", 300)); len(got) != MaxSummaryChars {
		t.Fatalf("summary not clipped: %d", len(got))
	}
}

func TestCleanTitle(t *testing.T) {
	if got := CleanTitle(""); got != DefaultTitle {
		t.Fatalf("empty title = %q", got)
	}
	if got := CleanTitle(`"Una noche larga"`); got != "Una noche larga" {
		t.Fatalf("quoted title = %q", got)
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{float64(42), 42},
		{float64(-3), 0},
		{float64(250), 100},
		{"77", 77},
		{"alto", NeutralScore},
		{nil, NeutralScore},
		{true, NeutralScore},
		{float64(84.5), 85},
	}
	for _, tt := range tests {
		if got := ClampScore(tt.in); got != tt.want {
			t.Errorf("ClampScore(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
