//go:build linux

package power

import "golang.org/x/sys/unix"

// poweroff требует CAP_SYS_BOOT; при успехе не возвращается.
func poweroff() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_POWER_OFF)
}
