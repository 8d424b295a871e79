package testutils

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(" +")

// RunInfraware executes an infraware command with the given arguments string (split by spaces).
// Use RunInfrawareArgs when arguments contain spaces that should be preserved.
func RunInfraware(ctx context.Context, env []string, binary, cmdArgs string, nolog bool) (stdout, stderr []byte, err error) {
	// Sanitize command.
	cmdArgs = strings.TrimSpace(cmdArgs)
	cmdArgs = multiSpaceRegex.ReplaceAllString(cmdArgs, " ")

	// Split into args.
	var args []string
	if cmdArgs != "" {
		args = strings.Split(cmdArgs, " ")
	}

	return RunInfrawareArgs(ctx, env, binary, args, nolog)
}

// RunInfrawareArgs executes an infraware command with pre-split arguments.
// This preserves arguments that contain spaces (e.g. a prompt).
func RunInfrawareArgs(ctx context.Context, env []string, binary string, args []string, nolog bool) (stdout, stderr []byte, err error) {
	var outData, errData bytes.Buffer
	cmd := command(ctx, env, binary, args, nolog)
	cmd.Stdout = &outData
	cmd.Stderr = &errData

	err = cmd.Run()

	return outData.Bytes(), errData.Bytes(), err
}

// StartInfraware starts a long running infraware command (e.g. serve), the
// returned stop function interrupts it and waits until it exits.
func StartInfraware(ctx context.Context, env []string, binary string, args []string, nolog bool) (stop func() (stderr []byte, err error), err error) {
	var errData bytes.Buffer
	cmd := command(ctx, env, binary, args, nolog)
	cmd.Stderr = &errData

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	stop = func() ([]byte, error) {
		_ = cmd.Process.Signal(os.Interrupt)
		err := cmd.Wait()
		return errData.Bytes(), err
	}

	return stop, nil
}

func command(ctx context.Context, env []string, binary string, args []string, nolog bool) *exec.Cmd {
	cmd := exec.CommandContext(ctx, binary, args...)

	// Set env: os.Environ() first, then custom env overrides on top.
	// In Go's exec.Cmd, when duplicate keys exist, the last one wins.
	newEnv := append([]string{}, os.Environ()...)
	newEnv = append(newEnv, env...)
	if nolog {
		newEnv = append(newEnv, "INFRAWARE_NO_LOG=true")
	}
	cmd.Env = newEnv

	return cmd
}
