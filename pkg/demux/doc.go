// Package demux decodes the multiplexed byte stream produced by the Docker
// exec-attach endpoint into a single text payload.
package demux
