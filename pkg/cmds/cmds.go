package cmds

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// RunCmd runs a shell command and waits for it to complete or for ctx to be
// cancelled, whichever comes first.
func RunCmd(ctx context.Context, cmd string) error {
	cmds := strings.Fields(cmd)
	if len(cmds) == 0 {
		return fmt.Errorf("empty shell command")
	}
	if err := exec.CommandContext(ctx, cmds[0], cmds[1:]...).Run(); err != nil {
		return fmt.Errorf("error running shell command:%v", err)
	}

	return nil
}
