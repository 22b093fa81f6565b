// Package archive provisions a disposable local archive instance with
// docker compose and guarantees its teardown.
package archive

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dandi/zarr-path-conflicts/pkg/config"
	"github.com/dandi/zarr-path-conflicts/pkg/dandi"
	"github.com/dandi/zarr-path-conflicts/pkg/utils"
)

// Archive identifies one running archive instance. Created once per run,
// read-only afterwards.
type Archive struct {
	APIURL   string
	APIToken string
}

// commandRunner matches utils.ExecCmdIn, injectable for tests.
type commandRunner func(ctx context.Context, timeout time.Duration, dir string, env []string, cmd string, args ...string) (string, error)

// Provisioner drives the docker compose lifecycle of a disposable instance.
type Provisioner struct {
	cfg         config.DockerConfig
	apiURL      string
	attempts    int
	interval    time.Duration
	projectName string

	run   commandRunner
	probe func(ctx context.Context) error
}

func NewProvisioner(cfg *config.Config) *Provisioner {
	projectName := cfg.Docker.ProjectName
	if projectName == "" {
		projectName = "zarr-path-conflicts-" + uuid.New().String()[:8]
	}
	probeClient := dandi.NewClient(cfg.Archive.APIURL, "", cfg.Archive.TimeoutDuration)
	return &Provisioner{
		cfg:         cfg.Docker,
		apiURL:      cfg.Archive.APIURL,
		attempts:    cfg.Archive.ReadinessAttempts,
		interval:    cfg.Archive.IntervalDuration,
		projectName: projectName,
		run:         utils.ExecCmdIn,
		probe:       probeClient.Ready,
	}
}

// WithArchive provisions an instance, hands it to fn and always tears the
// instance down afterwards, whether provisioning or fn succeeded or not.
func (p *Provisioner) WithArchive(ctx context.Context, fn func(ctx context.Context, a *Archive) error) (err error) {
	defer func() {
		if teardownErr := p.Teardown(context.WithoutCancel(ctx)); teardownErr != nil {
			log.Error().Msgf("teardown failed: %v", teardownErr)
			if err == nil {
				err = teardownErr
			}
		}
	}()
	a, err := p.Provision(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

// Provision brings the instance up: object-storage bucket, database
// migrations, cache table, superuser, auth token, web + task-queue
// processes, then polls the API until reachable.
func (p *Provisioner) Provision(ctx context.Context) (*Archive, error) {
	if p.cfg.PullImages {
		if err := p.compose(ctx, "pull"); err != nil {
			return nil, err
		}
	}
	if err := p.compose(ctx, "run", "--rm", "createbuckets"); err != nil {
		return nil, err
	}
	if err := p.compose(ctx, "run", "--rm", "django", "./manage.py", "migrate"); err != nil {
		return nil, err
	}
	if err := p.compose(ctx, "run", "--rm", "django", "./manage.py", "createcachetable"); err != nil {
		return nil, err
	}
	if err := p.compose(ctx,
		"run", "--rm", "-e", "DJANGO_SUPERUSER_PASSWORD="+p.cfg.SuperuserPassword,
		"django", "./manage.py", "createsuperuser", "--no-input", "--email", p.cfg.SuperuserEmail,
	); err != nil {
		return nil, err
	}
	out, err := p.composeOut(ctx, "run", "--rm", "-T", "django", "./manage.py", "drf_create_token", p.cfg.SuperuserEmail)
	if err != nil {
		return nil, errors.Wrapf(err, "drf_create_token failed: %s", out)
	}
	token, err := extractToken(out, p.cfg.SuperuserEmail)
	if err != nil {
		return nil, err
	}
	if err := p.compose(ctx, "up", "-d", "django", "celery"); err != nil {
		return nil, err
	}
	if err := p.waitReady(ctx); err != nil {
		return nil, err
	}
	log.Info().Msgf("archive is up at %s", p.apiURL)
	return &Archive{APIURL: p.apiURL, APIToken: token}, nil
}

// ProjectName returns the docker compose project name of this instance.
func (p *Provisioner) ProjectName() string {
	return p.projectName
}

// Teardown removes the instance's containers and volumes.
func (p *Provisioner) Teardown(ctx context.Context) error {
	return p.compose(ctx, "down", "-v")
}

func (p *Provisioner) compose(ctx context.Context, args ...string) error {
	out, err := p.composeOut(ctx, args...)
	log.Debug().Msg(out)
	if err != nil {
		return errors.Wrapf(err, "docker compose %s failed: %s", args[0], out)
	}
	return nil
}

func (p *Provisioner) composeOut(ctx context.Context, args ...string) (string, error) {
	composeArgs := []string{"compose", "-f", p.cfg.ComposeFile, "--progress", "plain", "--project-name", p.projectName}
	composeArgs = append(composeArgs, args...)
	return p.run(ctx, p.cfg.CommandDuration, p.cfg.ComposeDir, p.composeEnv(), "docker", composeArgs...)
}

func (p *Provisioner) composeEnv() []string {
	return append(os.Environ(), "DJANGO_DANDI_SCHEMA_VERSION="+p.cfg.SchemaVersion)
}

// waitReady polls the dandisets collection endpoint with a fixed attempt
// budget and spacing, tolerating connection failures between attempts.
func (p *Provisioner) waitReady(ctx context.Context) error {
	attempt := 0
	retry := retrier.New(retrier.ConstantBackoff(p.attempts-1, p.interval), nil)
	err := retry.RunCtx(ctx, func(ctx context.Context) error {
		attempt++
		if probeErr := p.probe(ctx); probeErr != nil {
			log.Debug().Msgf("archive not reachable yet (attempt %d/%d): %v", attempt, p.attempts, probeErr)
			return probeErr
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "archive did not start up within %d attempts", p.attempts)
	}
	return nil
}

// extractToken pulls the auth token out of drf_create_token output.
// Any other output format is a fatal extraction failure.
func extractToken(out, email string) (string, error) {
	re := regexp.MustCompile(fmt.Sprintf(`(?m)^Generated token (\w+) for user %s$`, regexp.QuoteMeta(email)))
	m := re.FindStringSubmatch(out)
	if m == nil {
		return "", errors.Errorf("could not extract auth token from drf_create_token output: %q", out)
	}
	return m[1], nil
}
