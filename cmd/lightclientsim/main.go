// Command lightclientsim drives a btcspv.LightClient against a flat file of
// hex-encoded headers, the same "read headers from somewhere, feed the
// state machine, report progress" shape as cmd/import/import.go, scoped
// down to headers only.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/nearlight/btcspv"
	"github.com/nearlight/btcspv/chainparams"
	"github.com/nearlight/btcspv/store"
)

func main() {
	dbPath := flag.String("db", "", "/path/to/leveldb (created if absent)")
	headersPath := flag.String("headers", "", "path to a file of newline-delimited hex-encoded headers, genesis first")
	chainName := flag.String("chain", "bitcoin", "bitcoin|litecoin|dogecoin|zcash")
	testnet := flag.Bool("testnet", false, "use testnet consensus parameters")
	maxForks := flag.Int("max-forks", 8, "maximum number of tracked competing tips")
	maxForkLen := flag.Uint64("max-fork-len", 500, "maximum fork length before ErrForkTooLong")
	gcThreshold := flag.Uint64("gc-threshold", 10_000, "number of main-chain headers retained before GC")
	maxBatch := flag.Int("max-batch", 2000, "maximum headers accepted per SubmitBlocks call")
	skipPoW := flag.Bool("skip-pow", false, "skip proof-of-work verification (testing only)")

	flag.Parse()

	if *headersPath == "" {
		log.Fatalf("-headers required.")
	}
	if *dbPath == "" {
		log.Fatalf("-db required.")
	}

	chain, err := parseChain(*chainName)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	st, err := store.OpenLevelStore(*dbPath)
	if err != nil {
		log.Fatalf("ERROR opening store: %v", err)
	}
	defer st.Close()

	client := btcspv.NewLightClient(btcspv.Config{
		Chain:        chain,
		Testnet:      *testnet,
		MaxForks:     *maxForks,
		MaxForkLen:   *maxForkLen,
		GCThreshold:  *gcThreshold,
		MaxBatchSize: *maxBatch,
		SkipPoW:      *skipPoW,
	}, st)

	headers, err := readHexHeaders(*headersPath)
	if err != nil {
		log.Fatalf("ERROR reading headers: %v", err)
	}
	if len(headers) == 0 {
		log.Fatalf("no headers in %s", *headersPath)
	}

	log.Printf("Read %d headers from %s.", len(headers), *headersPath)

	genesisHeader, err := btcspv.DecodeHeader(headers[0])
	if err != nil {
		log.Fatalf("ERROR decoding genesis header: %v", err)
	}
	genesisWork, err := btcspv.WorkFromBits(genesisHeader.Bits)
	if err != nil {
		log.Fatalf("ERROR computing genesis work: %v", err)
	}
	genesis := &btcspv.HeaderRecord{
		Header:    *genesisHeader,
		BlockHash: genesisHeader.BlockHash(),
		ChainWork: genesisWork,
		Height:    0,
	}
	if err := client.Init(genesis); err != nil {
		log.Printf("Init: %v (already initialized, continuing)", err)
	} else {
		log.Printf("Initialized genesis %s.", genesis.BlockHash)
	}

	rest := headers[1:]
	log.Printf("Submitting %d headers...", len(rest))
	accepted, err := btcspv.DecodeAndSubmit(client, rest)
	if err != nil {
		log.Printf("SubmitBlocks stopped after %d headers: %v", accepted, err)
	} else {
		log.Printf("Accepted all %d headers.", accepted)
	}

	tip, err := client.GetLastBlockHeader()
	if err != nil {
		log.Fatalf("ERROR reading tip: %v", err)
	}
	log.Printf("Main tip: height=%d hash=%s chain_work=%s", tip.Height, tip.BlockHash, tip.ChainWork)

	for _, f := range client.GetForks() {
		log.Printf("Fork tip: height=%d hash=%s chain_work=%s length=%d", f.TipHeight, f.TipHash, f.ChainWork, f.Length)
	}
}

func parseChain(name string) (chainparams.Chain, error) {
	switch strings.ToLower(name) {
	case "bitcoin":
		return chainparams.Bitcoin, nil
	case "litecoin":
		return chainparams.Litecoin, nil
	case "dogecoin":
		return chainparams.Dogecoin, nil
	case "zcash":
		return chainparams.Zcash, nil
	default:
		return 0, errUnknownChain(name)
	}
}

type errUnknownChain string

func (e errUnknownChain) Error() string { return "unknown chain: " + string(e) }

func readHexHeaders(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var headers [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw, err := hex.DecodeString(line)
		if err != nil {
			return nil, err
		}
		headers = append(headers, raw)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return headers, nil
}
