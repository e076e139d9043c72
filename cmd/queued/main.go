// Command queued is the cuti-queue daemon binary: a single cobra root
// command whose sole subcommand, serve, runs the control plane and the
// queue processor loop until an interrupt or terminate signal arrives.
// Structurally modeled on the teacher's cmd/ao cobra wiring (root.go,
// persistent flags, PersistentPreRun) but with one subcommand instead of
// dozens, since this daemon exposes its operations over HTTP rather than
// as a CLI surface.
package main

func main() {
	Execute()
}
