package main

import (
	"bytes"
	"encoding/binary"
	"os"
	"testing"
)

func TestRunKeygenSucceeds(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := run([]string{"keygen", "--datadir", dir, "--key-id", "000102030405060708090a0b0c0d0e0f", "--n", "5", "--t", "3"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("code=%d, stderr=%s", code, errOut.String())
	}
	if out.Len() == 0 {
		t.Fatalf("expected stdout output")
	}
}

func TestRunKeygenRejectsBadKeyID(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	code := run([]string{"keygen", "--datadir", dir, "--key-id", "not-hex"}, &out, &errOut)
	if code != 1 {
		t.Fatalf("code=%d, want 1", code)
	}
	if errOut.Len() == 0 {
		t.Fatalf("expected stderr output")
	}
}

func TestRunUnknownSubcommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"bogus"}, &out, &errOut)
	if code != 2 {
		t.Fatalf("code=%d, want 2", code)
	}
}

func TestRunNoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(nil, &out, &errOut)
	if code != 2 {
		t.Fatalf("code=%d, want 2", code)
	}
}

// TestRunServeOneFrame drives the serve harness end to end for one
// rke_generate frame read from a temporary input file and checks the
// length-prefixed response written to the output file.
func TestRunServeOneFrame(t *testing.T) {
	dir := t.TempDir()

	var frame bytes.Buffer
	cmdName := "rke_generate"
	frame.WriteByte(byte(len(cmdName)))
	frame.WriteString(cmdName)

	body := make([]byte, 21)
	body[16] = 1
	body[17] = 5
	body[18] = 3
	body[19], body[20] = 0xff, 0xff
	var bodyLen [4]byte
	binary.BigEndian.PutUint32(bodyLen[:], uint32(len(body)))
	frame.Write(bodyLen[:])
	frame.Write(body)
	frame.Write(make([]byte, 16)) // nonce

	inPath := dir + "/frames.in"
	outPath := dir + "/frames.out"
	if err := os.WriteFile(inPath, frame.Bytes(), 0o640); err != nil {
		t.Fatalf("write input: %v", err)
	}

	var out, errOut bytes.Buffer
	code := run([]string{"serve", "--datadir", dir, "--in", inPath, "--out", outPath}, &out, &errOut)
	if code != 0 {
		t.Fatalf("code=%d, stderr=%s", code, errOut.String())
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if len(raw) < 9 {
		t.Fatalf("output too short: %d bytes", len(raw))
	}
	status := int32(binary.BigEndian.Uint32(raw[0:4]))
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}
	outLen := binary.BigEndian.Uint32(raw[4:8])
	if outLen != 1 || raw[8] != 0x01 {
		t.Fatalf("output = %x, want [0x01]", raw[8:8+outLen])
	}
}
