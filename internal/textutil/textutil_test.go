package textutil

import (
	"reflect"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First point. Second point!\nThird line without punctuation\nFourth?")
	want := []string{"First point.", "Second point!", "Third line without punctuation", "Fourth?"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SplitSentences = %q, want %q", got, want)
	}
}

func TestExtractKeywordsOrdersByFrequency(t *testing.T) {
	text := "Rockets carry payloads. Rockets burn fuel. Payloads orbit the planet."
	got := ExtractKeywords(text, 3)
	// payloads and rockets tie on frequency; ties break alphabetically.
	want := []string{"payloads", "rockets", "burn"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractKeywords = %q, want %q", got, want)
	}
}

func TestExtractKeywordsSkipsStopwordsAndShortWords(t *testing.T) {
	for _, keyword := range ExtractKeywords("the cat is on a mat and it sat", 10) {
		if _, stop := stopwords[keyword]; stop {
			t.Fatalf("stopword %q leaked into keywords", keyword)
		}
		if len(keyword) < 3 {
			t.Fatalf("short word %q leaked into keywords", keyword)
		}
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Hello, World!":  "hello-world",
		"  Mixed CASE  ": "mixed-case",
		"___":            "untitled",
		"a--b":           "a-b",
		"Café Talks":     "caf-talks",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
