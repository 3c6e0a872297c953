/*
Package runtime wraps the Docker Engine API behind the ContainerRuntime
interface the execution engine depends on.

DockerRuntime covers the container lifecycle one execution needs: image
inspect/pull, create with a bind-mounted session directory and resource
caps, start, exec-attach with the raw multiplexed stream returned to the
caller, a one-shot stats sample, and force-remove. Reset tears down and
reopens the client when the daemon stops answering.

ImageCoordinator sits in front of image pulls and guarantees single-flight
per image: the first miss takes a per-image lock, re-checks presence under
it, and only then pulls, so concurrent executions never pull the same image
twice while distinct images still pull in parallel.
*/
package runtime
