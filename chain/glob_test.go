package chain

import "testing"

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"note", "note", true},
		{"note", "notes", false},
		{"*", "note", true},
		{"*", "posts/draft", false},
		{"**", "posts/draft", true},
		{"**", "note", true},
		{"posts/*", "posts/draft", true},
		{"posts/*", "posts", false},
		{"posts/**", "posts/a/b", true},
		{"**/draft", "posts/draft", true},
		{"**/draft", "draft", true},
		{"note[12]", "note1", true},
		{"note[12]", "note3", false},
		{"{note,task}", "task", true},
		{"{note,task}", "memo", false},
		{"posts/{draft,public}", "posts/public", true},
		{"posts/{draft,public}", "posts/hidden", false},
		{"n*e", "note", true},
		{"n*e", "nope", true},
		{"n*e", "nop", false},
	}
	for _, c := range cases {
		if got := globMatch(c.pattern, c.name); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}
