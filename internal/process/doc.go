// Package process runs short-lived helper commands for the node.
//
// The node shells out twice in its lifetime: after a firmware image has
// been staged (the apply command, e.g. a flash or A/B slot switch tool)
// and during a factory erase (the erase command). Both run to completion
// under a deadline.
//
// Features:
//   - Child runs in its own process group so helpers it spawns are signalled too
//   - Timeout handling: SIGTERM to the group, then SIGKILL after a grace period
//   - Bounded capture of combined stdout/stderr for logging and error reports
//   - Exit status reported as a typed error
//
// Example usage:
//
//	runner := process.NewRunner()
//	res, err := runner.Run(ctx, process.Config{
//	    Name:    "apply",
//	    Binary:  "/usr/sbin/fw-apply",
//	    Args:    []string{"/var/lib/graylogic-node/firmware.bin"},
//	    Timeout: 2 * time.Minute,
//	})
//	if err != nil {
//	    log.Printf("apply failed: %v (output: %s)", err, res.Output)
//	}
package process
