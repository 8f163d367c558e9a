// Package platform restarts the node when a factory erase or a
// successful update asks for it.
//
// Two modes exist:
//
//   - exit: the process exits with ExitCodeRestart and the service
//     manager (systemd Restart=always, s6, runit) starts it again.
//   - reboot: the filesystem is synced and the machine rebooted via
//     reboot(2). Requires CAP_SYS_BOOT; on failure the restarter falls
//     back to exit.
package platform
