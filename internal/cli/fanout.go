package cli

import (
	channerics "github.com/niceyeti/channerics/channels"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/adhocsim/macsim/sim"
)

// fanoutSnapshots splits the driver's single latest-wins snapshot
// channel into one feed per consumer, so the driver never needs to
// know how many things are watching it run.
func fanoutSnapshots(done <-chan struct{}, source <-chan sim.Snapshot) (tuiFeed, logFeed chan sim.Snapshot) {
	feeds := channerics.Broadcast(done, source, 2)
	return feeds[0], feeds[1]
}

// logProgress prints a liveness line every progressEvery ticks so a
// --watch run still shows up in the log stream once the inspector has
// taken over the terminal.
func logProgress(done <-chan struct{}, logger log.Logger, feed <-chan sim.Snapshot, progressEvery int) {
	for snap := range channerics.OrDone(done, feed) {
		if progressEvery > 0 && snap.Tick%progressEvery == 0 {
			level.Info(logger).Log("message", "progress", "tick", snap.Tick, "nodes", len(snap.Nodes))
		}
	}
}
