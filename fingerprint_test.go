package recall

import "testing"

func TestNormalizeText(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello   World", "hello world"},
		{"  tabs\tand\nnewlines  ", "tabs and newlines"},
		{"ＦＵＬＬＷＩＤＴＨ", "fullwidth"}, // NFKC folds fullwidth forms
		{"MiXeD Case", "mixed case"},
		{"", ""},
	}
	for _, c := range cases {
		if got := NormalizeText(c.in); got != c.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestEpisodeFingerprintStable(t *testing.T) {
	a := EpisodeFingerprint("Deploy failed", "rolled back", "recovered")
	b := EpisodeFingerprint("deploy   FAILED", "Rolled Back", "recovered")
	if a != b {
		t.Errorf("normalization-equivalent episodes differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}
}

func TestEpisodeFingerprintFieldBoundaries(t *testing.T) {
	// The separator keeps "ab"+"c" distinct from "a"+"bc".
	a := EpisodeFingerprint("ab", "c", "x")
	b := EpisodeFingerprint("a", "bc", "x")
	if a == b {
		t.Error("field boundary collision")
	}
}

func TestCacheKey(t *testing.T) {
	k1 := CacheKey("demo-abcd1234", "query", 10)
	k2 := CacheKey("demo-abcd1234", "query", 10)
	if k1 != k2 {
		t.Errorf("same inputs, different keys: %s vs %s", k1, k2)
	}
	if len(k1) != 32 {
		t.Errorf("key length = %d, want 32", len(k1))
	}
	if CacheKey("demo-abcd1234", "query", 5) == k1 {
		t.Error("topK not part of the key")
	}
	if CacheKey("other-abcd1234", "query", 10) == k1 {
		t.Error("project not part of the key")
	}
}
