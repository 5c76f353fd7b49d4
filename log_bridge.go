package btcspv

import (
	"log"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btclog"
)

// logWriter adapts btclog's backend, used internally by btcd/blockchain for
// its own diagnostic logging (e.g. difficulty retarget traces), back onto
// the standard "log" package everything else in this program uses.
// Grounded on btcnode/log.go's identical adapter for btcd/peer.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	log.Print(string(p[24:])) // strip out btclog's own timestamp prefix
	return len(p), nil
}

func init() {
	backend := btclog.NewBackend(logWriter{})
	chainLog := backend.Logger("CHAIN")
	chainLog.SetLevel(btclog.LevelInfo)
	blockchain.UseLogger(chainLog)
}
