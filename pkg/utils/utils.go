package utils

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ExecCmd runs cmd with args and discards its combined output after logging it.
func ExecCmd(ctx context.Context, timeout time.Duration, cmd string, args ...string) error {
	out, err := ExecCmdOut(ctx, timeout, cmd, args...)
	log.Debug().Msg(out)
	return err
}

// ExecCmdOut runs cmd with args and returns its combined output.
func ExecCmdOut(ctx context.Context, timeout time.Duration, cmd string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	log.Debug().Msgf("%s %s", cmd, strings.Join(args, " "))
	out, err := exec.CommandContext(ctx, cmd, args...).CombinedOutput()
	cancel()
	return string(out), err
}

// ExecCmdIn is ExecCmdOut with an explicit working directory and environment,
// for child processes which resolve paths relative to a configuration directory.
func ExecCmdIn(ctx context.Context, timeout time.Duration, dir string, env []string, cmd string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	log.Debug().Msgf("%s %s (wd=%s)", cmd, strings.Join(args, " "), dir)
	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = dir
	c.Env = env
	out, err := c.CombinedOutput()
	return string(out), err
}

const day = time.Minute * 60 * 24

// HumanizeDuration - format duration for log output
func HumanizeDuration(d time.Duration) string {
	if d < day {
		return d.Round(time.Millisecond).String()
	}
	days := d / day
	d -= days * day
	return fmt.Sprintf("%dd%s", days, d)
}
