package brightchain

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/brightchain/brightchain-go/internal/chunker"
	"github.com/brightchain/brightchain-go/pkg/block"
	"github.com/brightchain/brightchain-go/pkg/cbl"
	"github.com/brightchain/brightchain-go/pkg/checksum"
	"github.com/brightchain/brightchain-go/pkg/ecies"
	"github.com/brightchain/brightchain-go/pkg/member"
	"github.com/brightchain/brightchain-go/pkg/store"
	"github.com/brightchain/brightchain-go/pkg/tuple"
)

// StoreData splits content into blocks, encrypts each chunk for all
// recipients, whitens the ciphertext and persists the tuple members.
// The returned magnet link references the signed block list. When no
// recipients are given the creator is the sole recipient.
func (e *Engine) StoreData(ctx context.Context, content []byte, creator *member.Member, recipients []*member.Member, opts StoreOptions) (StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return StoreResult{}, err
	}
	blocks, err := e.blockStore()
	if err != nil {
		return StoreResult{}, err
	}
	if creator == nil || !creator.HasPrivateKey() {
		return StoreResult{}, member.ErrNoPrivateKey
	}
	if len(content) == 0 {
		return StoreResult{}, block.ErrEmptyPayload
	}
	if uint64(len(content)) > cbl.MaxFileSize {
		return StoreResult{}, cbl.ErrFileSizeTooLarge
	}

	if len(recipients) == 0 {
		recipients = []*member.Member{creator}
	}
	recs := make([]ecies.Recipient, len(recipients))
	for i, r := range recipients {
		recs[i] = r.Recipient()
	}

	payload := content
	compressed := false
	if e.config.Compress {
		z := e.zenc.EncodeAll(content, nil)
		if len(z) < len(content) {
			payload = z
			compressed = true
		}
	}

	capacity := int(e.config.BlockSize) - ecies.MultiOverhead(len(recs))
	if capacity <= streamPrefixLen {
		return StoreResult{}, fmt.Errorf("%w: %s with %d recipients", ErrBlockSizeTooSmall, e.config.BlockSize, len(recs))
	}

	// The length prefix lets reassembly strip the zero padding of the
	// final chunk.
	stream := make([]byte, 0, streamPrefixLen+len(payload))
	stream = binary.BigEndian.AppendUint64(stream, uint64(len(payload)))
	stream = append(stream, payload...)

	chunks := chunker.Padded(chunker.New(bytes.NewReader(stream), int64(capacity)), capacity)

	var addresses []checksum.Checksum
	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return StoreResult{}, err
		}
		chunk, err := chunks.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return StoreResult{}, fmt.Errorf("brightchain: chunking payload: %w", err)
		}

		encrypted, err := e.eciesSvc.EncryptMultiple(recs, chunk)
		if err != nil {
			return StoreResult{}, err
		}
		encBlock, err := block.New(block.TypeEncryptedMulti, e.config.BlockSize, encrypted)
		if err != nil {
			return StoreResult{}, err
		}

		tupleAddrs, n, err := e.storeTuple(blocks, encBlock)
		if err != nil {
			return StoreResult{}, err
		}
		addresses = append(addresses, tupleAddrs...)
		written += n
	}

	root, listBlocks, err := e.storeListBlocks(blocks, creator, content, addresses, opts, compressed)
	if err != nil {
		return StoreResult{}, err
	}
	written += listBlocks

	e.log.Info("stored data",
		"cbl", root.String(),
		"bytes", len(content),
		"blocks", written,
		"recipients", len(recs))

	return StoreResult{
		Magnet: store.MagnetURI(root, e.config.BlockSize),
		CBL:    root,
		Blocks: written,
	}, nil
}

// storeTuple whitens the ciphertext block against fresh random blocks
// and persists the whole tuple. The ciphertext itself is stored as the
// closing member so that any single lost member is the XOR of the
// others. Only the whitened block and the randoms enter the block
// list.
func (e *Engine) storeTuple(blocks *store.BlockStore, encBlock *block.Block) ([]checksum.Checksum, int, error) {
	members := make([]*block.Block, 0, e.config.TupleSize)
	members = append(members, encBlock)
	for i := 1; i < e.config.TupleSize; i++ {
		r, err := block.NewRandom(e.config.BlockSize)
		if err != nil {
			return nil, 0, err
		}
		members = append(members, r)
	}

	whitened, err := e.tuples.Whiten(members)
	if err != nil {
		return nil, 0, err
	}

	// stored = whitened + randoms + ciphertext; the XOR over the whole
	// set is zero.
	stored := make([]*block.Block, 0, e.config.TupleSize+1)
	stored = append(stored, whitened)
	stored = append(stored, members[1:]...)
	stored = append(stored, encBlock)

	sums := make([]checksum.Checksum, len(stored))
	for i, b := range stored {
		sums[i] = b.Checksum()
	}

	written := 0
	for i, b := range stored {
		siblings := make([]checksum.Checksum, 0, len(stored)-1)
		for j, cs := range sums {
			if j != i {
				siblings = append(siblings, cs)
			}
		}
		if err := e.putProtected(blocks, b, siblings); err != nil {
			return nil, 0, err
		}
		written++
	}

	return sums[:e.config.TupleSize], written, nil
}

// putProtected stores a block with its tuple record and a fresh
// parity record. Blocks already present are left untouched.
func (e *Engine) putProtected(blocks *store.BlockStore, b *block.Block, siblings []checksum.Checksum) error {
	par, shards, err := e.fec.Encode(b.Payload(), e.config.ParityShards)
	if err != nil {
		return err
	}
	_, err = blocks.PutWithMetadata(b, store.Metadata{
		Type:         b.Type(),
		Size:         b.Size(),
		Tuple:        siblings,
		Parity:       par,
		ParityShards: shards,
	})
	if errors.Is(err, store.ErrBlockAlreadyExists) {
		return nil
	}
	return err
}

// storeListBlocks writes the CBL hierarchy for the stored addresses
// and returns the root block's checksum.
func (e *Engine) storeListBlocks(blocks *store.BlockStore, creator *member.Member, content []byte, addresses []checksum.Checksum, opts StoreOptions, compressed bool) (checksum.Checksum, int, error) {
	priv, err := creator.PrivateKey()
	if err != nil {
		return checksum.Checksum{}, 0, err
	}
	defer priv.Zero()

	now := time.Now().UTC()
	params := cbl.Params{
		CreatorID:          creator.ID,
		CreatedAt:          now,
		OriginalDataLength: uint64(len(content)),
		TupleSize:          e.config.TupleSize,
		Filename:           opts.Filename,
		MimeType:           opts.MimeType,
		Compressed:         compressed,
		BlockSize:          e.config.BlockSize,
	}

	maxAddrs := cbl.MaxAddresses(e.config.BlockSize, opts.Filename, opts.MimeType)
	maxAddrs -= maxAddrs % e.config.TupleSize
	if maxAddrs < e.config.TupleSize {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %s cannot hold a single tuple", ErrBlockSizeTooSmall, e.config.BlockSize)
	}

	if len(addresses) <= maxAddrs {
		data, err := e.cblSvc.MakeCbl(params, addresses, priv)
		if err != nil {
			return checksum.Checksum{}, 0, err
		}
		cs, err := e.storeListBlock(blocks, block.TypeCBL, data)
		if err != nil {
			return checksum.Checksum{}, 0, err
		}
		return cs, 1, nil
	}

	// Too many addresses for one list: shard into sub-CBLs under a
	// single SuperCBL.
	var subSums []checksum.Checksum
	for start := 0; start < len(addresses); start += maxAddrs {
		end := start + maxAddrs
		if end > len(addresses) {
			end = len(addresses)
		}
		data, err := e.cblSvc.MakeCbl(params, addresses[start:end], priv)
		if err != nil {
			return checksum.Checksum{}, 0, err
		}
		cs, err := e.storeListBlock(blocks, block.TypeCBL, data)
		if err != nil {
			return checksum.Checksum{}, 0, err
		}
		subSums = append(subSums, cs)
	}

	if len(subSums) > cbl.MaxSubCbls(e.config.BlockSize) {
		return checksum.Checksum{}, 0, fmt.Errorf("%w: %d sub lists exceed one SuperCBL", ErrDataTooLarge, len(subSums))
	}

	superData, err := e.cblSvc.MakeSuperCbl(cbl.SuperParams{
		CreatorID:            creator.ID,
		CreatedAt:            now,
		OriginalDataLength:   uint64(len(content)),
		OriginalDataChecksum: checksum.Calculate(content),
		Depth:                1,
		SubCblCount:          uint32(len(subSums)),
		TotalBlockCount:      uint64(len(addresses) / e.config.TupleSize * (e.config.TupleSize + 1)),
		BlockSize:            e.config.BlockSize,
	}, subSums, priv)
	if err != nil {
		return checksum.Checksum{}, 0, err
	}
	cs, err := e.storeListBlock(blocks, block.TypeSuperCBL, superData)
	if err != nil {
		return checksum.Checksum{}, 0, err
	}
	return cs, len(subSums) + 1, nil
}

func (e *Engine) storeListBlock(blocks *store.BlockStore, typ block.Type, data []byte) (checksum.Checksum, error) {
	b, err := block.New(typ, e.config.BlockSize, data)
	if err != nil {
		return checksum.Checksum{}, err
	}
	if err := e.putProtected(blocks, b, nil); err != nil {
		return checksum.Checksum{}, err
	}
	return b.Checksum(), nil
}

// RetrieveData resolves a magnet link, reassembles the chunks and
// decrypts them for the given member. The member must have been one
// of the recipients at store time and must hold its private key.
func (e *Engine) RetrieveData(ctx context.Context, magnet string, m *member.Member) ([]byte, FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, FileInfo{}, err
	}
	blocks, err := e.blockStore()
	if err != nil {
		return nil, FileInfo{}, err
	}
	if m == nil || !m.HasPrivateKey() {
		return nil, FileInfo{}, member.ErrNoPrivateKey
	}

	root, size, err := store.ParseMagnetURI(magnet)
	if err != nil {
		return nil, FileInfo{}, err
	}
	if size != e.config.BlockSize {
		e.log.Debug("magnet block size differs from engine config",
			"magnet", size.String(), "config", e.config.BlockSize.String())
	}

	rootBlock, err := blocks.Get(root)
	if err != nil {
		return nil, FileInfo{}, err
	}

	headers, super, err := e.resolveListBlocks(blocks, rootBlock.Payload())
	if err != nil {
		return nil, FileInfo{}, err
	}
	if len(headers) == 0 {
		return nil, FileInfo{}, fmt.Errorf("%w: list block resolves to no addresses", ErrCorruptPayload)
	}
	first := headers[0]

	info := FileInfo{
		CreatorID: first.CreatorID,
		CreatedAt: first.CreatedAt,
		Filename:  first.Filename,
		MimeType:  first.MimeType,
		Size:      first.OriginalDataLength,
	}
	if super != nil {
		info.CreatedAt = super.CreatedAt
		info.Size = super.OriginalDataLength
	}

	reassembly, err := tuple.NewService(int(first.TupleSize), e.fec)
	if err != nil {
		return nil, FileInfo{}, err
	}

	priv, err := m.PrivateKey()
	if err != nil {
		return nil, FileInfo{}, err
	}
	defer priv.Zero()

	var stream []byte
	for _, h := range headers {
		for i := 0; i < len(h.Addresses); i += int(h.TupleSize) {
			if err := ctx.Err(); err != nil {
				return nil, FileInfo{}, err
			}
			chunk, err := e.decryptTuple(blocks, reassembly, h.Addresses[i:i+int(h.TupleSize)], priv, m)
			if err != nil {
				return nil, FileInfo{}, err
			}
			stream = append(stream, chunk...)
		}
	}

	payload, err := unpackStream(stream)
	if err != nil {
		return nil, FileInfo{}, err
	}

	if first.Compressed {
		payload, err = e.zdec.DecodeAll(payload, nil)
		if err != nil {
			return nil, FileInfo{}, fmt.Errorf("%w: decompression failed: %v", ErrCorruptPayload, err)
		}
	}

	if uint64(len(payload)) != info.Size {
		return nil, FileInfo{}, fmt.Errorf("%w: got %d bytes, list says %d", ErrCorruptPayload, len(payload), info.Size)
	}
	if super != nil && !checksum.Validate(payload, super.OriginalDataChecksum) {
		return nil, FileInfo{}, fmt.Errorf("%w: checksum mismatch against list record", ErrCorruptPayload)
	}

	return payload, info, nil
}

// resolveListBlocks parses the root list block and, for a SuperCBL,
// loads and parses every sub list.
func (e *Engine) resolveListBlocks(blocks *store.BlockStore, data []byte) ([]*cbl.Header, *cbl.SuperHeader, error) {
	if !cbl.IsSuperCbl(data) {
		h, err := e.cblSvc.ParseCbl(data)
		if err != nil {
			return nil, nil, err
		}
		return []*cbl.Header{h}, nil, nil
	}

	super, err := e.cblSvc.ParseSuperCbl(data)
	if err != nil {
		return nil, nil, err
	}
	headers := make([]*cbl.Header, 0, len(super.SubCblChecksums))
	for _, cs := range super.SubCblChecksums {
		sub, err := blocks.Get(cs)
		if err != nil {
			return nil, nil, err
		}
		h, err := e.cblSvc.ParseCbl(sub.Payload())
		if err != nil {
			return nil, nil, err
		}
		headers = append(headers, h)
	}
	return headers, super, nil
}

// decryptTuple loads one tuple worth of addresses, undoes the
// whitening and opens the multi-recipient envelope. The first address
// is the whitened block, the rest are its random siblings.
func (e *Engine) decryptTuple(blocks *store.BlockStore, reassembly *tuple.Service, addrs []checksum.Checksum, priv *secp256k1.PrivateKey, m *member.Member) ([]byte, error) {
	whitened, err := blocks.Get(addrs[0])
	if err != nil {
		return nil, err
	}
	randoms := make([]*block.Block, 0, len(addrs)-1)
	for _, cs := range addrs[1:] {
		r, err := blocks.Get(cs)
		if err != nil {
			return nil, err
		}
		randoms = append(randoms, r)
	}

	encrypted, err := reassembly.Reconstruct(randoms, whitened)
	if err != nil {
		return nil, err
	}

	return e.eciesSvc.DecryptMultipleForRecipient(priv, m.ID, encrypted.Payload())
}

func unpackStream(stream []byte) ([]byte, error) {
	if len(stream) < streamPrefixLen {
		return nil, fmt.Errorf("%w: %d bytes of stream", ErrCorruptPayload, len(stream))
	}
	payloadLen := binary.BigEndian.Uint64(stream[:streamPrefixLen])
	if payloadLen > uint64(len(stream)-streamPrefixLen) {
		return nil, fmt.Errorf("%w: prefix says %d bytes, stream has %d", ErrCorruptPayload, payloadLen, len(stream)-streamPrefixLen)
	}
	return stream[streamPrefixLen : streamPrefixLen+int(payloadLen)], nil
}
