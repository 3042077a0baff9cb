package static

import "testing"

func TestResolve(t *testing.T) {
	rv := Resolver{Root: "/srv/www"}

	cases := []struct {
		name string
		uri  string
		want string
	}{
		{"root", "/", "/srv/www/index.html"},
		{"plain file", "/index.html", "/srv/www/index.html"},
		{"nested file", "/assets/site.css", "/srv/www/assets/site.css"},
		{"directory without slash", "/docs", "/srv/www/docs/index.html"},
		{"directory with slash", "/docs/", "/srv/www/docs/index.html"},
		{"query stripped", "/style.css?v=2", "/srv/www/style.css"},
		{"query on root", "/?utm=x", "/srv/www/index.html"},
		{"dotted directory in path", "/v1.2/readme.txt", "/srv/www/v1.2/readme.txt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rv.Resolve([]byte(tc.uri))
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tc.uri, err)
			}
			if got != tc.want {
				t.Errorf("Resolve(%q) = %q, want %q", tc.uri, got, tc.want)
			}
		})
	}
}

func TestResolveTrimsRootSlash(t *testing.T) {
	rv := Resolver{Root: "./www/"}
	got, err := rv.Resolve([]byte("/a.html"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != "./www/a.html" {
		t.Errorf("Resolve = %q, want %q", got, "./www/a.html")
	}
}

func TestResolveBlocksTraversal(t *testing.T) {
	rv := Resolver{Root: "/srv/www"}

	for _, uri := range []string{
		"/../etc/passwd",
		"/a/../../x",
		"/..",
		"/static/../../../../etc/shadow",
	} {
		t.Run(uri, func(t *testing.T) {
			if _, err := rv.Resolve([]byte(uri)); err != ErrPathTraversal {
				t.Errorf("Resolve(%q) = %v, want ErrPathTraversal", uri, err)
			}
		})
	}
}

func TestResolveAllowsDotPrefixedNames(t *testing.T) {
	rv := Resolver{Root: "/srv/www"}
	got, err := rv.Resolve([]byte("/.well-known/x.txt"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != "/srv/www/.well-known/x.txt" {
		t.Errorf("Resolve = %q", got)
	}
}
