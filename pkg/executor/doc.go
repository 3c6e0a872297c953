/*
Package executor implements the execution engine: one piece of code, one
fresh container, one structured result.

The lifecycle of an execution:

	Request
	  │  runtime handshake (version probe, one client reinit on failure)
	  │  session directory ensured under the upload root
	  │  pre-snapshot of the session directory
	  ▼
	semaphore admission (MAX_CONCURRENT_CONTAINERS permits)
	  │  image readiness via the single-flight coordinator
	  ▼
	container create ── sleep infinity, /mnt/data workdir,
	  │                 session dir bind-mounted, memory/cpu caps,
	  │                 network per configuration
	  │  start + poll until running (100ms interval, 10s deadline)
	  │  metrics entry registered, detached one-shot stats sample
	  │  chown -R jovyan:users /mnt/data as root (non-fatal)
	  │  interpreter exec as jovyan under the execution deadline
	  ▼
	decode output ── exit 0: post-snapshot, diff, register changed files
	  │              exit ≠0: stderr = merged output, no files
	  ▼
	force-delete container (every path), return result

Execute never returns a Go error; failures are folded into the result with
status "error". The permit is held from admission until after teardown, so
the count of live sandbox containers never exceeds the configured cap.
*/
package executor
