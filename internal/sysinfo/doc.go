// Package sysinfo answers the system queries behind the node's info
// command: hardware address and IP of the uplink interface, uptime, free
// memory, and the wireless SSID and signal level.
//
// Uptime and free memory come from sysinfo(2) on Linux. SSID is read with
// `iwgetid -r`; RSSI is parsed from /proc/net/wireless. Any query that
// fails yields a zero value so an info reply is always produced.
package sysinfo
