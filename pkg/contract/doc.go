// Package contract implements the uniform result protocol every executor
// must honor. An executor, whether a configuration-management engine acting
// on an inventory or a direct adapter acting on a single control point,
// terminates by emitting exactly one stats document on stdout:
//
//	{"stats":{"<target>":{"changed":0|1,"failed":0|1,"unreachable":0|1}}}
//
// and exits 0 when no target failed, nonzero otherwise. The package also
// normalizes the richer counter output of configuration-management engines
// into the same per-target shape, so the stage runner never branches on the
// executor kind.
package contract
