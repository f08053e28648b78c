// Package textutil provides filename sanitization and title normalization
// helpers shared by the transfer queue and the device copy manager.
package textutil
