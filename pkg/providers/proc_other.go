//go:build !unix

package providers

import "os/exec"

// killProcessGroupOnCancel keeps the exec default of killing the direct child.
func killProcessGroupOnCancel(cmd *exec.Cmd) {}
