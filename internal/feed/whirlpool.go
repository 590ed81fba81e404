package feed

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbwatch/internal/config"
	"arbwatch/internal/domain"
)

// Whirlpool account layout offsets (Orca whirlpool program).
const (
	whirlpoolMinLen     = 213
	sqrtPriceOffset     = 65 // u128 little-endian
	sqrtPriceLen        = 16
	tokenMintAOffset    = 101 // 32-byte pubkey
	tokenMintBOffset    = 181 // 32-byte pubkey
	mintAccountMinLen   = 82
	mintDecimalsOffset  = 44
	rpcRequestTimeout   = 10 * time.Second
	divisionPrecision   = 18
)

// WhirlpoolFeed watches an Orca whirlpool account over the Solana websocket
// pubsub API and emits reference-price updates derived from the pool's
// sqrt price. Token decimals are resolved once per connection from the pool's
// mint accounts via the HTTP RPC endpoint.
type WhirlpoolFeed struct {
	wsEndpoint  string
	rpcEndpoint string
	poolAddress string
	out         chan domain.RefPriceUpdate
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewWhirlpoolFeed creates a feed for the configured pool. Updates are
// delivered on Updates(); the channel is closed when Run returns.
func NewWhirlpoolFeed(cfg config.DexConfig, logger *slog.Logger) *WhirlpoolFeed {
	return &WhirlpoolFeed{
		wsEndpoint:  cfg.WsEndpoint,
		rpcEndpoint: cfg.RpcEndpoint,
		poolAddress: cfg.WhirlpoolAddress,
		out:         make(chan domain.RefPriceUpdate, 16),
		httpClient:  &http.Client{Timeout: rpcRequestTimeout},
		logger:      logger.With(slog.String("component", "whirlpool_feed")),
	}
}

// Updates returns the channel of reference-price events.
func (f *WhirlpoolFeed) Updates() <-chan domain.RefPriceUpdate {
	return f.out
}

// Run connects, subscribes to account changes for the pool, and pumps price
// events until ctx is cancelled. Reconnects with exponential backoff.
func (f *WhirlpoolFeed) Run(ctx context.Context) error {
	defer close(f.out)

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.WarnContext(ctx, "solana ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *WhirlpoolFeed) runConnection(ctx context.Context) error {
	// Fetch the current pool state first so a price is available before the
	// first on-chain change, and so decimals are resolved up front.
	account, err := f.fetchAccount(ctx, f.poolAddress)
	if err != nil {
		return fmt.Errorf("feed/whirlpool: fetch pool: %w", err)
	}
	state, err := parseWhirlpoolAccount(account)
	if err != nil {
		return fmt.Errorf("feed/whirlpool: %w", err)
	}

	decA, err := f.fetchMintDecimals(ctx, state.TokenMintA)
	if err != nil {
		return fmt.Errorf("feed/whirlpool: mint A decimals: %w", err)
	}
	decB, err := f.fetchMintDecimals(ctx, state.TokenMintB)
	if err != nil {
		return fmt.Errorf("feed/whirlpool: mint B decimals: %w", err)
	}
	f.logger.InfoContext(ctx, "whirlpool resolved",
		slog.String("pool", f.poolAddress),
		slog.Int("decimals_a", int(decA)),
		slog.Int("decimals_b", int(decB)),
	)

	if err := f.emit(ctx, state.SqrtPrice, decA, decB); err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("feed/whirlpool: connect: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	sub := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "accountSubscribe",
		Params: []any{
			f.poolAddress,
			map[string]string{"encoding": "base64", "commitment": "confirmed"},
		},
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("feed/whirlpool: marshal subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed/whirlpool: subscribe: %w", err)
	}
	f.logger.InfoContext(ctx, "solana ws subscribed", slog.String("pool", f.poolAddress))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed/whirlpool: read: %w", domain.ErrWSDisconnect)
		}

		var note accountNotification
		if err := json.Unmarshal(raw, &note); err != nil {
			return fmt.Errorf("feed/whirlpool: decode notification: %w", err)
		}
		if note.Method != "accountNotification" {
			continue
		}
		account, err := note.Params.Result.Value.decode()
		if err != nil {
			return fmt.Errorf("feed/whirlpool: %w", err)
		}
		state, err := parseWhirlpoolAccount(account)
		if err != nil {
			return fmt.Errorf("feed/whirlpool: %w", err)
		}
		if err := f.emit(ctx, state.SqrtPrice, decA, decB); err != nil {
			return err
		}
	}
}

func (f *WhirlpoolFeed) emit(ctx context.Context, sqrtPrice *big.Int, decA, decB uint8) error {
	price := priceFromSqrtPrice(sqrtPrice, decA, decB)
	if price.Sign() <= 0 {
		return fmt.Errorf("feed/whirlpool: %w: derived price %s", domain.ErrInvalidPrice, price)
	}
	select {
	case f.out <- domain.RefPriceUpdate{Price: price, Timestamp: time.Now().UTC()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchAccount retrieves raw account data via getAccountInfo over HTTP.
func (f *WhirlpoolFeed) fetchAccount(ctx context.Context, address string) ([]byte, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAccountInfo",
		Params:  []any{address, map[string]string{"encoding": "base64"}},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rpc call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp struct {
		Result struct {
			Value *accountValue `json:"value"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result.Value == nil {
		return nil, fmt.Errorf("account %s: %w", address, domain.ErrNotFound)
	}
	return rpcResp.Result.Value.decode()
}

func (f *WhirlpoolFeed) fetchMintDecimals(ctx context.Context, mint string) (uint8, error) {
	account, err := f.fetchAccount(ctx, mint)
	if err != nil {
		return 0, err
	}
	return parseMintDecimals(account)
}

// whirlpoolState is the subset of the on-chain whirlpool account this feed
// needs.
type whirlpoolState struct {
	SqrtPrice  *big.Int
	TokenMintA string
	TokenMintB string
}

// parseWhirlpoolAccount extracts the sqrt price and token mints from raw
// whirlpool account data.
func parseWhirlpoolAccount(data []byte) (whirlpoolState, error) {
	if len(data) < whirlpoolMinLen {
		return whirlpoolState{}, fmt.Errorf("whirlpool account too short: %d bytes", len(data))
	}

	// sqrt_price is a u128 stored little-endian; big.Int wants big-endian.
	le := data[sqrtPriceOffset : sqrtPriceOffset+sqrtPriceLen]
	be := make([]byte, sqrtPriceLen)
	for i, b := range le {
		be[sqrtPriceLen-1-i] = b
	}

	return whirlpoolState{
		SqrtPrice:  new(big.Int).SetBytes(be),
		TokenMintA: encodeBase58(data[tokenMintAOffset : tokenMintAOffset+32]),
		TokenMintB: encodeBase58(data[tokenMintBOffset : tokenMintBOffset+32]),
	}, nil
}

// parseMintDecimals reads the decimals byte from raw SPL mint account data.
func parseMintDecimals(data []byte) (uint8, error) {
	if len(data) < mintAccountMinLen {
		return 0, fmt.Errorf("mint account too short: %d bytes", len(data))
	}
	return data[mintDecimalsOffset], nil
}

// priceFromSqrtPrice converts a whirlpool X64.64 sqrt price into a human
// price of token B per token A: (sqrtPrice / 2^64)^2 * 10^(decA - decB).
func priceFromSqrtPrice(sqrtPrice *big.Int, decA, decB uint8) decimal.Decimal {
	squared := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	denom := new(big.Int).Lsh(big.NewInt(1), 128)

	price := decimal.NewFromBigInt(squared, 0).
		DivRound(decimal.NewFromBigInt(denom, 0), divisionPrecision)
	return price.Shift(int32(decA) - int32(decB))
}

// accountValue is the "value" object inside getAccountInfo results and
// account notifications: data is a [content, encoding] pair.
type accountValue struct {
	Data []string `json:"data"`
}

func (v accountValue) decode() ([]byte, error) {
	if len(v.Data) < 2 || v.Data[1] != "base64" {
		return nil, fmt.Errorf("unexpected account data encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(v.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

type accountNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription int64 `json:"subscription"`
		Result       struct {
			Value accountValue `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// encodeBase58 renders a pubkey the way Solana tooling displays it.
func encodeBase58(input []byte) string {
	n := new(big.Int).SetBytes(input)
	radix := big.NewInt(58)
	mod := new(big.Int)

	out := make([]byte, 0, 44)
	for n.Sign() > 0 {
		n.DivMod(n, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range input {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
