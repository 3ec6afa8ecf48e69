package signal

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/watchparty/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	in := Identity{SessionID: 4, Participant: domain.Participant{UserID: 8, Username: "eight"}}
	tok, err := IssueToken("s3cret", in, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	out, err := ParseToken("s3cret", tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestParseTokenFailures(t *testing.T) {
	id := Identity{SessionID: 4, Participant: domain.Participant{UserID: 8, Username: "eight"}}
	expired, err := IssueToken("s3cret", id, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	good, err := IssueToken("s3cret", id, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	noSession, err := IssueToken("s3cret", Identity{Participant: id.Participant}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name, secret, token string
	}{
		{"expired", "s3cret", expired},
		{"wrong secret", "other", good},
		{"garbage", "s3cret", "not-a-jwt"},
		{"no session", "s3cret", noSession},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseToken(tc.secret, tc.token); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := ParseToken("", good); !errors.Is(err, ErrTokensDisabled) {
		t.Fatalf("err = %v, want ErrTokensDisabled", err)
	}
	if _, err := IssueToken("", id, time.Minute); !errors.Is(err, ErrTokensDisabled) {
		t.Fatalf("err = %v, want ErrTokensDisabled", err)
	}
}
