package auth

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"

	"github.com/dmitrijs2005/zappro/internal/logging"
	"github.com/stretchr/testify/require"
)

var (
	pairsOnce sync.Once
	mainPair  *KeyPair
	otherPair *KeyPair
	pairsErr  error
)

// testPairs returns two independent RSA pairs shared by the whole package.
func testPairs(t *testing.T) (*KeyPair, *KeyPair) {
	t.Helper()
	pairsOnce.Do(func() {
		mainPair, pairsErr = GenerateKeyPair(2048)
		if pairsErr != nil {
			return
		}
		otherPair, pairsErr = GenerateKeyPair(2048)
	})
	require.NoError(t, pairsErr)
	return mainPair, otherPair
}

func bufferLogger() (logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return logging.NewSlogLogger(slog.New(h)), &buf
}
