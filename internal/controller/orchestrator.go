package controller

import (
	"context"
	"fmt"
	"os/exec"
)

// ComposeOrchestrator delegates external actions (build/start/stop/clean/
// deploy/destroy/log) to docker compose subcommands, mirroring what the
// original cfsi.py's entrypoint shelled out to for the same tokens.
type ComposeOrchestrator struct {
	ComposeFile string
}

var composeArgs = map[string][]string{
	"build":   {"build"},
	"start":   {"up", "-d", "catalog-db"},
	"stop":    {"stop"},
	"clean":   {"down", "-v"},
	"deploy":  {"up", "-d"},
	"destroy": {"down"},
	"log":     {"logs", "-f"},
}

func (o ComposeOrchestrator) Run(ctx context.Context, action string) error {
	args, ok := composeArgs[action]
	if !ok {
		return fmt.Errorf("no docker compose mapping for action %q", action)
	}
	full := append([]string{"-f", o.ComposeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", append([]string{"compose"}, full...)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker compose %s failed: %w: %s", action, err, string(out))
	}
	return nil
}

// FakeOrchestrator backs unit tests, recording invoked actions without
// touching a real docker daemon.
type FakeOrchestrator struct {
	Calls []string
	Err   error
}

func (o *FakeOrchestrator) Run(_ context.Context, action string) error {
	o.Calls = append(o.Calls, action)
	return o.Err
}
