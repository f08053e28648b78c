// Package device manages removable volumes: enumeration, hotplug
// notifications, and verified copies of catalog artifacts onto a volume's
// games directory.
package device
