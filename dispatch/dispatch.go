// Package dispatch implements the RKE command handlers: the byte-exact
// request parsers, validators, and response builders for each wire
// command, wired against the splitter, store, and authpage packages.
package dispatch

import (
	"log/slog"
	"time"

	"raidax.dev/rke/authpage"
	"raidax.dev/rke/rkecrypto"
	"raidax.dev/rke/rkeerrors"
	"raidax.dev/rke/rkewire"
	"raidax.dev/rke/splitter"
	"raidax.dev/rke/store"
)

// ConnCtx is the per-request context a handler reads its input from and
// writes its result into, mirroring the protocol's connection context.
type ConnCtx struct {
	Body          []byte
	Output        []byte
	CommandStatus rkeerrors.Code
	Nonce         [16]byte
}

// Dispatcher holds the collaborators every command handler needs.
type Dispatcher struct {
	Store  *store.Store
	Pages  authpage.PageStore
	CoinID uint16
	Logger *slog.Logger

	// now returns the current Unix time; overridable in tests.
	now func() int64
}

// New returns a Dispatcher. A nil logger falls back to slog.Default().
func New(st *store.Store, pages authpage.PageStore, coinID uint16, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Store:  st,
		Pages:  pages,
		CoinID: coinID,
		Logger: logger,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// SetNow overrides the dispatcher's clock; tests use this for deterministic
// timestamps and modification stamps.
func (d *Dispatcher) SetNow(now func() int64) {
	d.now = now
}

// HandlerFunc is the shape of every command handler.
type HandlerFunc func(d *Dispatcher, ctx *ConnCtx)

// Handler describes one wire command: its name, a predicate over body_size,
// and the function that handles it. This models §4.F's command table as a
// declaration rather than a switch.
type Handler struct {
	Name      string
	BodySizeOK func(n int) bool
	Handle    HandlerFunc
}

// Table is the full set of RKE wire commands.
var Table = map[string]Handler{
	"rke_generate": {
		Name:       "rke_generate",
		BodySizeOK: func(n int) bool { return n == 21 },
		Handle:     (*Dispatcher).HandleRKEGenerate,
	},
	"rke_exchange": {
		Name:       "rke_exchange",
		BodySizeOK: func(n int) bool { return n >= 19 },
		Handle:     (*Dispatcher).HandleRKEExchange,
	},
	"rke_reconstruct": {
		Name:       "rke_reconstruct",
		BodySizeOK: func(n int) bool { return n == 18 },
		Handle:     (*Dispatcher).HandleRKEReconstruct,
	},
	"rke_query": {
		Name:       "rke_query",
		BodySizeOK: func(n int) bool { return n == 18 },
		Handle:     (*Dispatcher).HandleRKEQuery,
	},
	"encrypt_key": {
		Name:       "encrypt_key",
		BodySizeOK: func(n int) bool { return n == 31 },
		Handle:     (*Dispatcher).HandleEncryptKey,
	},
	"decrypt_raida_key": {
		Name:       "decrypt_raida_key",
		BodySizeOK: func(n int) bool { return n >= 49 && (n-23)%26 == 0 },
		Handle:     (*Dispatcher).HandleDecryptRaidaKey,
	},
	"post_key": {
		Name:       "post_key",
		BodySizeOK: func(n int) bool { return n == 185 },
		Handle:     (*Dispatcher).HandlePostKey,
	},
	"get_key": {
		Name:       "get_key",
		BodySizeOK: func(n int) bool { return n == 55 },
		Handle:     (*Dispatcher).HandleGetKey,
	},
	"key_alert": {
		Name:       "key_alert",
		BodySizeOK: func(n int) bool { return true },
		Handle:     (*Dispatcher).HandleKeyAlert,
	},
}

// Dispatch looks up cmd in Table and runs its handler against ctx. An
// unknown command name is reported as InvalidParameter; a body_size that
// fails the command's predicate is reported as InvalidPacketLength before
// the handler itself runs (except decrypt_raida_key's divisibility check,
// which is reported here as CoinsNotDiv per the wire status table).
func (d *Dispatcher) Dispatch(cmd string, ctx *ConnCtx) {
	h, ok := Table[cmd]
	if !ok {
		ctx.CommandStatus = rkeerrors.InvalidParameter
		return
	}
	if cmd == "decrypt_raida_key" {
		if len(ctx.Body) < 49 {
			ctx.CommandStatus = rkeerrors.InvalidPacketLength
			return
		}
		if (len(ctx.Body)-23)%26 != 0 {
			ctx.CommandStatus = rkeerrors.CoinsNotDiv
			return
		}
	} else if !h.BodySizeOK(len(ctx.Body)) {
		ctx.CommandStatus = rkeerrors.InvalidPacketLength
		return
	}
	h.Handle(d, ctx)
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// HandleRKEGenerate implements rke_generate: it generates a 256-byte key,
// splits it into the requested fragments, and persists fragments+metadata.
func (d *Dispatcher) HandleRKEGenerate(ctx *ConnCtx) {
	payload := ctx.Body
	var keyID [16]byte
	copy(keyID[:], payload[0:16])
	keyType := payload[16]
	total := payload[17]
	threshold := payload[18]

	if threshold > total || total == 0 || threshold < rkewire.MinThreshold {
		ctx.CommandStatus = rkeerrors.InvalidParameter
		return
	}

	key, err := rkecrypto.RandomBytes(rkewire.MaxKeySize)
	if err != nil {
		ctx.CommandStatus = rkeerrors.KeyGeneration
		return
	}

	frags, err := splitter.Split(key, total, threshold)
	if err != nil {
		ctx.CommandStatus = rkeerrors.KeySplitting
		return
	}
	for _, f := range frags {
		if err := d.Store.StoreFragment(keyID, f); err != nil {
			ctx.CommandStatus = rkeerrors.Filesystem
			return
		}
	}

	meta := rkewire.KeyMetadata{
		KeyID:          keyID,
		KeyType:        keyType,
		TotalFragments: total,
		Threshold:      threshold,
		Timestamp:      uint32(d.now()),
		Den:            0,
		SN:             0,
	}
	if err := d.Store.StoreMetadata(meta); err != nil {
		ctx.CommandStatus = rkeerrors.Filesystem
		return
	}

	ctx.Output = []byte{0x01}
	ctx.CommandStatus = rkeerrors.Success
}

// HandleRKEExchange implements rke_exchange: returns one stored fragment.
func (d *Dispatcher) HandleRKEExchange(ctx *ConnCtx) {
	payload := ctx.Body
	var keyID [16]byte
	copy(keyID[:], payload[0:16])
	fragmentID := payload[16]

	if !d.Store.FragmentExists(keyID, fragmentID) {
		ctx.CommandStatus = rkeerrors.InvalidParameter
		return
	}
	f, err := d.Store.LoadFragment(keyID, fragmentID)
	if err != nil {
		ctx.CommandStatus = rkeerrors.Filesystem
		return
	}
	ctx.Output = rkewire.EncodeFragment(f)
	ctx.CommandStatus = rkeerrors.Success
}

// HandleRKEReconstruct implements rke_reconstruct: reconstructs a key from
// every fragment present, right-padded to 256 bytes.
func (d *Dispatcher) HandleRKEReconstruct(ctx *ConnCtx) {
	payload := ctx.Body
	var keyID [16]byte
	copy(keyID[:], payload[0:16])

	meta, err := d.Store.LoadMetadata(keyID)
	if err != nil {
		ctx.CommandStatus = rkeerrors.Filesystem
		return
	}

	var frags []rkewire.Fragment
	for i := uint8(1); ; i++ {
		if d.Store.FragmentExists(keyID, i) {
			f, err := d.Store.LoadFragment(keyID, i)
			if err != nil {
				ctx.CommandStatus = rkeerrors.Filesystem
				return
			}
			frags = append(frags, f)
		}
		if i == meta.TotalFragments {
			break
		}
	}

	key, err := splitter.Reconstruct(frags, int(meta.Threshold))
	if err != nil {
		if rkeerrors.CodeOf(err) == rkeerrors.InsufficientFragments {
			ctx.CommandStatus = rkeerrors.InvalidParameter
		} else {
			ctx.CommandStatus = rkeerrors.KeyGeneration
		}
		return
	}

	out := make([]byte, rkewire.MaxKeySize)
	copy(out, key)
	ctx.Output = out
	ctx.CommandStatus = rkeerrors.Success
}

// HandleRKEQuery implements rke_query: returns metadata plus a 32-byte
// fragment-presence bitmap.
func (d *Dispatcher) HandleRKEQuery(ctx *ConnCtx) {
	payload := ctx.Body
	var keyID [16]byte
	copy(keyID[:], payload[0:16])

	meta, err := d.Store.LoadMetadata(keyID)
	if err != nil {
		ctx.CommandStatus = rkeerrors.Filesystem
		return
	}

	var bitmap [32]byte
	for i := uint16(1); i <= uint16(meta.TotalFragments); i++ {
		if d.Store.FragmentExists(keyID, uint8(i)) {
			bitmap[(i-1)/8] |= 1 << ((i - 1) % 8)
		}
	}

	out := make([]byte, 0, rkewire.KeyMetadataSize+32)
	out = append(out, rkewire.EncodeKeyMetadata(meta)...)
	out = append(out, bitmap[:]...)
	ctx.Output = out
	ctx.CommandStatus = rkeerrors.Success
}

// HandleEncryptKey implements encrypt_key.
func (d *Dispatcher) HandleEncryptKey(ctx *ConnCtx) {
	payload := ctx.Body
	den := payload[16]
	sn := beUint32(payload[17:21])

	page, err := d.Pages.TakeLock(den, sn)
	if err != nil {
		ctx.CommandStatus = rkeerrors.InvalidSnOrDen
		return
	}
	snIdx := d.recordIndex(sn)
	rec, err := page.Record(snIdx)
	if err != nil {
		_ = d.Pages.Release(page)
		ctx.CommandStatus = rkeerrors.InvalidSnOrDen
		return
	}
	_ = d.Pages.Release(page)
	var aen [16]byte
	copy(aen[:], rec[0:16])

	out := make([]byte, 16)
	copy(out[0:8], payload[5:13])
	out[8] = den
	copy(out[9:13], payload[17:21])
	r, err := rkecrypto.RandomBytes(2)
	if err != nil {
		ctx.CommandStatus = rkeerrors.MemoryAlloc
		return
	}
	out[13] = r[0]
	out[14] = r[1]
	out[15] = 0xff

	rkecrypto.StreamXOR(aen[:], ctx.Nonce[:], out)
	ctx.Output = out
	ctx.CommandStatus = rkeerrors.Success
}

// recordIndex derives the within-page record index for sn. Without a
// configured page size (the store is external per spec §3), this mirrors
// the reference implementation's direct serial-number indexing.
func (d *Dispatcher) recordIndex(sn uint32) int {
	if bp, ok := d.Pages.(interface{ RecordIndex(uint32) int }); ok {
		return bp.RecordIndex(sn)
	}
	return int(sn)
}

// HandleDecryptRaidaKey implements decrypt_raida_key.
func (d *Dispatcher) HandleDecryptRaidaKey(ctx *ConnCtx) {
	payload := ctx.Body
	den := payload[16]
	sn := beUint32(payload[17:21])
	m := (len(payload) - 23) / 26

	secrets, err := d.Store.LoadEncCoin(den, sn, d.CoinID)
	if err != nil {
		ctx.CommandStatus = rkeerrors.CoinLoad
		return
	}

	mfs := d.getMFS()

	out := make([]byte, m)
	for i := 0; i < m; i++ {
		off := 21 + i*26
		block := payload[off : off+26]
		splitID := block[2]
		da := block[3]
		denI := block[5]
		snI := block[6:10]
		keyBlock := append([]byte(nil), block[10:26]...)

		if da > 24 || splitID > 1 {
			continue
		}

		page, err := d.Pages.TakeLock(denI, beUint32(snI))
		if err != nil {
			continue
		}

		var aen [16]byte
		copy(aen[:], secrets[int(da)*16:int(da)*16+16])
		rkecrypto.StreamXOR(aen[:], ctx.Nonce[:], keyBlock)

		if keyBlock[15] != 0xff || keyBlock[8] != denI || !bytesEqual(keyBlock[9:13], snI) {
			_ = d.Pages.Release(page)
			continue
		}

		snIdx := d.recordIndex(beUint32(snI))
		var half [8]byte
		copy(half[:], keyBlock[0:8])
		if err := page.SetSplit(snIdx, splitID, half, mfs); err != nil {
			_ = d.Pages.Release(page)
			continue
		}
		if err := d.Pages.Release(page); err != nil {
			continue
		}
		out[i] = 0x01
	}

	ctx.Output = out
	ctx.CommandStatus = rkeerrors.Success
}

// getMFS returns the modification stamp to write for this call's accepted
// records, captured once per decrypt_raida_key invocation rather than
// per block.
func (d *Dispatcher) getMFS() byte {
	return byte(d.now())
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// HandlePostKey implements post_key.
func (d *Dispatcher) HandlePostKey(ctx *ConnCtx) {
	payload := ctx.Body
	var keyID [16]byte
	copy(keyID[:], payload[16:32])
	den := payload[32]
	sn := beUint32(payload[33:37])
	ks := payload[165]
	kl := payload[166]

	if int(ks)+int(kl) > 127 {
		ctx.CommandStatus = rkeerrors.InvalidKeyStart
		return
	}

	material := payload[37:165]
	if int(ks)+int(kl) > len(material) {
		ctx.CommandStatus = rkeerrors.InvalidKeyStart
		return
	}
	if err := d.Store.PostKey(keyID, den, sn, material[ks:ks+kl]); err != nil {
		ctx.CommandStatus = rkeerrors.Filesystem
		return
	}
	ctx.CommandStatus = rkeerrors.Success
}

// HandleGetKey implements get_key.
func (d *Dispatcher) HandleGetKey(ctx *ConnCtx) {
	payload := ctx.Body
	var keyID [16]byte
	copy(keyID[:], payload[0:16])

	data, err := d.Store.GetKey(keyID)
	if err != nil {
		ctx.CommandStatus = rkeerrors.Filesystem
		return
	}
	ctx.Output = data
	ctx.CommandStatus = rkeerrors.Success
}

// HandleKeyAlert implements key_alert: a no-op acknowledged with Success.
func (d *Dispatcher) HandleKeyAlert(ctx *ConnCtx) {
	ctx.CommandStatus = rkeerrors.Success
}
