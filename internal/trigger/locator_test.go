package trigger

import "testing"

func TestTokenString(t *testing.T) {
	tests := []struct {
		name  string
		token Token
		want  string
	}{
		{"bare commit", Commit(""), "~commit"},
		{"branch commit", Commit("staging"), "~commit:staging"},
		{"bare pr", PR(""), "~pr"},
		{"branch pr", PR("main"), "~pr:main"},
		{"sd", SD(42, "deploy"), "~sd@42:deploy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.token.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Token
		wantErr bool
	}{
		{"bare commit", "~commit", Commit(""), false},
		{"branch commit", "~commit:staging", Commit("staging"), false},
		{"bare pr", "~pr", PR(""), false},
		{"branch pr", "~pr:feature-x", PR("feature-x"), false},
		{"sd", "~sd@7:main", SD(7, "main"), false},
		{"sd dotted job", "~sd@7:deploy.prod", SD(7, "deploy.prod"), false},
		{"missing prefix", "commit", Token{}, true},
		{"unknown kind", "~release", Token{}, true},
		{"empty branch", "~commit:", Token{}, true},
		{"sd missing job", "~sd@7:", Token{}, true},
		{"sd bad id", "~sd@abc:main", Token{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []string{"~commit", "~commit:main", "~pr", "~pr:dev", "~sd@123:lint"} {
		tok, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", s, err)
		}
		if got := tok.String(); got != s {
			t.Errorf("round trip %q = %q", s, got)
		}
	}
}

func TestExtractPipelineID(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		want    int64
		wantErr bool
	}{
		{"bare locator", "~sd@9:deploy", 9, false},
		{"embedded locator", "jobs:[~sd@42:publish]", 42, false},
		{"no locator", "deploy-pipeline", 0, true},
		{"two locators", "~sd@1:a ~sd@2:b", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractPipelineID(tt.dest)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractPipelineID(%q) error = %v, wantErr %v", tt.dest, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractPipelineID(%q) = %d, want %d", tt.dest, got, tt.want)
			}
		})
	}
}
