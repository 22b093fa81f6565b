package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/dandi/zarr-path-conflicts/pkg/config"
)

func TestExtractToken(t *testing.T) {
	r := require.New(t)

	token, err := extractToken("Generated token abc123 for user admin@nil.nil", "admin@nil.nil")
	r.NoError(err)
	r.Equal("abc123", token)

	// token line surrounded by other command output
	token, err = extractToken("System check identified no issues.\nGenerated token xyz789 for user admin@nil.nil\n", "admin@nil.nil")
	r.NoError(err)
	r.Equal("xyz789", token)

	_, err = extractToken("no token here", "admin@nil.nil")
	r.Error(err)
	r.Contains(err.Error(), "no token here")

	// wrong user is not a match
	_, err = extractToken("Generated token abc123 for user other@nil.nil", "admin@nil.nil")
	r.Error(err)
}

// stubRunner records every invoked command line and answers the token
// creation command with canned output.
type stubRunner struct {
	commands []string
	failOn   string
}

func (s *stubRunner) run(_ context.Context, _ time.Duration, _ string, _ []string, cmd string, args ...string) (string, error) {
	line := cmd + " " + strings.Join(args, " ")
	s.commands = append(s.commands, line)
	if s.failOn != "" && strings.Contains(line, s.failOn) {
		return "simulated failure", errors.New("exit status 1")
	}
	if strings.Contains(line, "drf_create_token") {
		return "Generated token abc123 for user admin@nil.nil\n", nil
	}
	return "", nil
}

func (s *stubRunner) count(substr string) int {
	n := 0
	for _, c := range s.commands {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

func newTestProvisioner(stub *stubRunner, pull bool) *Provisioner {
	cfg := config.DefaultConfig()
	cfg.Docker.PullImages = pull
	p := NewProvisioner(cfg)
	p.run = stub.run
	p.probe = func(context.Context) error { return nil }
	p.interval = time.Millisecond
	return p
}

func TestProvisionSequence(t *testing.T) {
	r := require.New(t)
	stub := &stubRunner{}
	p := newTestProvisioner(stub, true)

	a, err := p.Provision(context.Background())
	r.NoError(err)
	r.Equal("abc123", a.APIToken)
	r.Equal("http://localhost:8000/api", a.APIURL)

	expectedOrder := []string{
		"pull",
		"run --rm createbuckets",
		"run --rm django ./manage.py migrate",
		"run --rm django ./manage.py createcachetable",
		"createsuperuser --no-input --email admin@nil.nil",
		"run --rm -T django ./manage.py drf_create_token admin@nil.nil",
		"up -d django celery",
	}
	r.Len(stub.commands, len(expectedOrder))
	for i, want := range expectedOrder {
		r.Contains(stub.commands[i], want, "command #%d", i)
	}
	for _, c := range stub.commands {
		r.Contains(c, "--project-name", "all compose commands carry the project name")
	}
}

func TestProvisionSkipsPullWhenDisabled(t *testing.T) {
	r := require.New(t)
	stub := &stubRunner{}
	p := newTestProvisioner(stub, false)

	_, err := p.Provision(context.Background())
	r.NoError(err)
	r.Zero(stub.count(" pull"))
	r.Equal(1, stub.count("createbuckets"))
}

func TestProvisionFailurePropagates(t *testing.T) {
	r := require.New(t)
	stub := &stubRunner{failOn: "migrate"}
	p := newTestProvisioner(stub, false)

	_, err := p.Provision(context.Background())
	r.Error(err)
	r.Contains(err.Error(), "simulated failure")
	r.Zero(stub.count("createcachetable"), "later steps are not attempted")
}

func TestWaitReadyStopsAtFirstSuccess(t *testing.T) {
	r := require.New(t)
	stub := &stubRunner{}
	p := newTestProvisioner(stub, false)
	p.attempts = 25
	attempts := 0
	p.probe = func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	r.NoError(p.waitReady(context.Background()))
	r.Equal(3, attempts, "no further polling after success")
}

func TestWaitReadyExhaustsAttemptBudget(t *testing.T) {
	r := require.New(t)
	stub := &stubRunner{}
	p := newTestProvisioner(stub, false)
	p.attempts = 4
	attempts := 0
	p.probe = func(context.Context) error {
		attempts++
		return errors.New("connection refused")
	}

	err := p.waitReady(context.Background())
	r.Error(err)
	r.Contains(err.Error(), "did not start up within 4 attempts")
	r.Equal(4, attempts)
}

func TestWithArchiveTeardownAlwaysRuns(t *testing.T) {
	r := require.New(t)

	t.Run("scenario succeeds", func(t *testing.T) {
		stub := &stubRunner{}
		p := newTestProvisioner(stub, false)
		r.NoError(p.WithArchive(context.Background(), func(context.Context, *Archive) error { return nil }))
		r.Equal(1, stub.count("down -v"))
	})

	t.Run("scenario fails", func(t *testing.T) {
		stub := &stubRunner{}
		p := newTestProvisioner(stub, false)
		scenarioErr := errors.New("scenario blew up")
		err := p.WithArchive(context.Background(), func(context.Context, *Archive) error { return scenarioErr })
		r.ErrorIs(err, scenarioErr)
		r.Equal(1, stub.count("down -v"))
	})

	t.Run("provisioning fails", func(t *testing.T) {
		stub := &stubRunner{failOn: "createbuckets"}
		p := newTestProvisioner(stub, false)
		err := p.WithArchive(context.Background(), func(context.Context, *Archive) error {
			t.Fatal("scenario must not run when provisioning failed")
			return nil
		})
		r.Error(err)
		r.Equal(1, stub.count("down -v"))
	})
}
