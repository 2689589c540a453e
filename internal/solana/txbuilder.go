package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	Pubkey     string
	IsSigner   bool
	IsWritable bool
}

// Instruction is one program invocation within a transaction.
type Instruction struct {
	ProgramID string
	Accounts  []AccountMeta
	Data      []byte
}

// Transaction is a legacy-format Solana transaction under construction.
// Signatures are filled in per signer; absent ones stay zeroed, which is how
// a partially-signed transaction travels to the remaining party.
type Transaction struct {
	message    []byte
	signers    []string // required signers in account-key order
	signatures [][]byte // one 64-byte slot per required signer
}

// NewTransaction compiles instructions into a serialized legacy message
// bound to recentBlockhash. feePayer is placed first and always signs.
func NewTransaction(feePayer, recentBlockhash string, instructions []Instruction) (*Transaction, error) {
	if feePayer == "" || recentBlockhash == "" || len(instructions) == 0 {
		return nil, fmt.Errorf("fee payer, blockhash and instructions are required")
	}

	keys, header, err := compileAccountKeys(feePayer, instructions)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(keys))
	for i, k := range keys {
		index[k.Pubkey] = i
	}

	var msg bytes.Buffer
	msg.Write([]byte{header.numRequiredSignatures, header.numReadonlySigned, header.numReadonlyUnsigned})

	writeCompactU16(&msg, len(keys))
	for _, k := range keys {
		raw, err := base58.Decode(k.Pubkey)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("invalid account key %q", k.Pubkey)
		}
		msg.Write(raw)
	}

	hashRaw, err := base58.Decode(recentBlockhash)
	if err != nil || len(hashRaw) != 32 {
		return nil, fmt.Errorf("invalid blockhash %q", recentBlockhash)
	}
	msg.Write(hashRaw)

	writeCompactU16(&msg, len(instructions))
	for _, ins := range instructions {
		programIdx, ok := index[ins.ProgramID]
		if !ok {
			return nil, fmt.Errorf("program %s missing from account keys", ins.ProgramID)
		}
		msg.WriteByte(byte(programIdx))

		writeCompactU16(&msg, len(ins.Accounts))
		for _, acc := range ins.Accounts {
			accIdx, ok := index[acc.Pubkey]
			if !ok {
				return nil, fmt.Errorf("account %s missing from account keys", acc.Pubkey)
			}
			msg.WriteByte(byte(accIdx))
		}

		writeCompactU16(&msg, len(ins.Data))
		msg.Write(ins.Data)
	}

	tx := &Transaction{message: msg.Bytes()}
	for i := 0; i < int(header.numRequiredSignatures); i++ {
		tx.signers = append(tx.signers, keys[i].Pubkey)
		tx.signatures = append(tx.signatures, make([]byte, ed25519.SignatureSize))
	}
	return tx, nil
}

// messageHeader mirrors the three-byte legacy message header.
type messageHeader struct {
	numRequiredSignatures byte
	numReadonlySigned     byte
	numReadonlyUnsigned   byte
}

// compileAccountKeys merges and orders account metas: fee payer, writable
// signers, readonly signers, writable non-signers, readonly non-signers,
// then referenced programs.
func compileAccountKeys(feePayer string, instructions []Instruction) ([]AccountMeta, messageHeader, error) {
	merged := map[string]*AccountMeta{
		feePayer: {Pubkey: feePayer, IsSigner: true, IsWritable: true},
	}
	var order []string
	order = append(order, feePayer)

	add := func(m AccountMeta) {
		if existing, ok := merged[m.Pubkey]; ok {
			existing.IsSigner = existing.IsSigner || m.IsSigner
			existing.IsWritable = existing.IsWritable || m.IsWritable
			return
		}
		copy := m
		merged[m.Pubkey] = &copy
		order = append(order, m.Pubkey)
	}

	for _, ins := range instructions {
		for _, acc := range ins.Accounts {
			add(acc)
		}
		add(AccountMeta{Pubkey: ins.ProgramID})
	}

	classify := func(pick func(*AccountMeta) bool) []AccountMeta {
		var out []AccountMeta
		for _, key := range order {
			if key == feePayer {
				continue
			}
			if m := merged[key]; pick(m) {
				out = append(out, *m)
			}
		}
		return out
	}

	writableSigners := classify(func(m *AccountMeta) bool { return m.IsSigner && m.IsWritable })
	readonlySigners := classify(func(m *AccountMeta) bool { return m.IsSigner && !m.IsWritable })
	writable := classify(func(m *AccountMeta) bool { return !m.IsSigner && m.IsWritable })
	readonly := classify(func(m *AccountMeta) bool { return !m.IsSigner && !m.IsWritable })

	keys := []AccountMeta{*merged[feePayer]}
	keys = append(keys, writableSigners...)
	keys = append(keys, readonlySigners...)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)

	if len(keys) > 255 {
		return nil, messageHeader{}, fmt.Errorf("too many account keys: %d", len(keys))
	}

	header := messageHeader{
		numRequiredSignatures: byte(1 + len(writableSigners) + len(readonlySigners)),
		numReadonlySigned:     byte(len(readonlySigners)),
		numReadonlyUnsigned:   byte(len(readonly)),
	}
	return keys, header, nil
}

// Sign adds the signature of one required signer. Signing is partial: the
// transaction is valid for submission only once every slot is filled.
func (t *Transaction) Sign(key ed25519.PrivateKey) error {
	pub := base58.Encode(key.Public().(ed25519.PublicKey))
	for i, signer := range t.signers {
		if signer == pub {
			t.signatures[i] = ed25519.Sign(key, t.message)
			return nil
		}
	}
	return fmt.Errorf("%s is not a required signer", pub)
}

// SignedBy reports whether the slot for pubkey holds a signature.
func (t *Transaction) SignedBy(pubkey string) bool {
	for i, signer := range t.signers {
		if signer == pubkey {
			return !bytes.Equal(t.signatures[i], make([]byte, ed25519.SignatureSize))
		}
	}
	return false
}

// Signers returns the required signers in account-key order.
func (t *Transaction) Signers() []string {
	out := make([]string, len(t.signers))
	copy(out, t.signers)
	return out
}

// Message returns the serialized message bytes being signed.
func (t *Transaction) Message() []byte {
	out := make([]byte, len(t.message))
	copy(out, t.message)
	return out
}

// Serialize renders the wire format: compact signature count, signature
// slots (zeroed where unsigned), then the message.
func (t *Transaction) Serialize() []byte {
	var buf bytes.Buffer
	writeCompactU16(&buf, len(t.signatures))
	for _, sig := range t.signatures {
		buf.Write(sig)
	}
	buf.Write(t.message)
	return buf.Bytes()
}

// Base64 returns the serialized transaction base64-encoded for transport.
func (t *Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}

// writeCompactU16 writes the compact-u16 (shortvec) encoding of n.
func writeCompactU16(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}

// NewSystemTransferInstruction moves lamports from one account to another.
func NewSystemTransferInstruction(from, to string, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2) // SystemProgram::Transfer
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsWritable: true},
		},
		Data: data,
	}
}

// NewTokenTransferInstruction moves SPL token units between token accounts.
// owner must sign.
func NewTokenTransferInstruction(source, destination, owner string, amount uint64) Instruction {
	data := make([]byte, 9)
	data[0] = 3 // TokenInstruction::Transfer
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: source, IsWritable: true},
			{Pubkey: destination, IsWritable: true},
			{Pubkey: owner, IsSigner: true},
		},
		Data: data,
	}
}

// NewCreateAssociatedTokenAccountInstruction creates wallet's token account
// for mint, funded by payer. Idempotent variant: a no-op when the account
// already exists.
func NewCreateAssociatedTokenAccountInstruction(payer, associatedAccount, wallet, mint string) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer, IsSigner: true, IsWritable: true},
			{Pubkey: associatedAccount, IsWritable: true},
			{Pubkey: wallet},
			{Pubkey: mint},
			{Pubkey: SystemProgramID},
			{Pubkey: TokenProgramID},
		},
		Data: []byte{1}, // CreateIdempotent
	}
}
