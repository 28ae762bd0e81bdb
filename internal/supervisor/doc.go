/*
Package supervisor runs external tools (ffmpeg, ffprobe) and reduces each
run to exactly one terminal Outcome.

Three events race for every process: the process exiting, Cancel being
called, and the maximum runtime elapsing. The first one wins:

	exit status 0      -> Succeeded
	exit status != 0   -> Failed (ExitCode set)
	launch error       -> Failed (Err is *LaunchError)
	Cancel()           -> process group killed, Cancelled
	runtime exceeded   -> process group killed, Failed (Err wraps ErrTimeout)

The outcome is published once through Done and Outcome. Cancel is
idempotent and does nothing after the outcome is known. When the outcome is
published the child and everything in its process group has been killed or
has exited.

stderr is split into lines and handed to a diagnostic sink, and the last
lines are kept on the Outcome. Diagnostics never influence the outcome.

	sup := supervisor.New(supervisor.WithMaxRuntime(5 * time.Minute))
	out := sup.Run(r.Context(), supervisor.Spec{
		Name:   "ffmpeg-hls",
		Binary: "ffmpeg",
		Args:   args,
	})
	if out.State != supervisor.Succeeded {
		return fmt.Errorf("encode: %s", out.Reason())
	}
*/
package supervisor
