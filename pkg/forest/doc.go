// Package forest builds the config and distro trees hab resolves
// against.
//
// Configs form a tree keyed by URI segments. A config file names its
// node (`name` plus optional `context`); intermediate URIs without a
// file of their own get placeholder nodes that a later file may
// replace. Distros form a flat forest: one Distro container per name
// holding every discovered DistroVersion in PEP 440 order.
//
// Loading is tolerant where the data allows it. Distro directories
// with unparseable or ignored versions are dropped with a log message,
// and a config whose requirement strings do not parse is kept in the
// tree as an error node so the failure surfaces only when that URI is
// actually requested.
package forest
