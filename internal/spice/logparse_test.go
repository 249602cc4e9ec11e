package spice

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
)

const ltspiceLog = `Circuit: * CMOS inverter

tphl=1.23456e-10 FROM 1.005e-08 TO 1.01735e-08
tplh=2.5e-10 FROM 2.005e-08 TO 2.03e-08
Measurement "pavg" FAIL'ed

Date: Mon Jan 05 10:00:00 2026
Total elapsed time: 0.123 seconds.
`

const ngspiceLog = `
tphl                =  1.234560e-10 targ=  1.017350e-08 trig=  1.005000e-08
tplh                =  2.500000e-10 targ=  2.030000e-08 trig=  2.005000e-08
`

func TestParseLogLTspice(t *testing.T) {
	meas, failed, err := ParseLog(ltspiceLog)
	if err != nil {
		t.Fatal(err)
	}

	if v, ok := meas.Get("TPHL"); !ok || v != 1.23456e-10 {
		t.Errorf("tphl = %g (found %v), want 1.23456e-10", v, ok)
	}
	if v, ok := meas.Get("tplh"); !ok || v != 2.5e-10 {
		t.Errorf("tplh = %g (found %v), want 2.5e-10", v, ok)
	}
	if len(failed) != 1 || failed[0] != "pavg" {
		t.Errorf("failed = %v, want [pavg]", failed)
	}
	if _, ok := meas.Get("pavg"); ok {
		t.Error("failed measure must not be reported as found")
	}
}

func TestParseLogNgspice(t *testing.T) {
	meas, _, _ := ParseLog(ngspiceLog)
	if v, _ := meas.Get("tphl"); v != 1.23456e-10 {
		t.Errorf("tphl = %g, want 1.23456e-10", v)
	}
	if v, _ := meas.Get("tplh"); v != 2.5e-10 {
		t.Errorf("tplh = %g, want 2.5e-10", v)
	}
}

func TestDecodeLogUTF16(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	data, err := enc.Bytes([]byte(ltspiceLog))
	if err != nil {
		t.Fatal(err)
	}

	text, err := DecodeLog(data)
	if err != nil {
		t.Fatalf("DecodeLog failed: %v", err)
	}
	meas, _, _ := ParseLog(text)
	if v, _ := meas.Get("tphl"); v != 1.23456e-10 {
		t.Errorf("tphl from UTF-16 log = %g", v)
	}
}

func TestDecodeLogUTF16WithoutBOM(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	data, err := enc.Bytes([]byte(ngspiceLog))
	if err != nil {
		t.Fatal(err)
	}
	text, err := DecodeLog(data)
	if err != nil {
		t.Fatalf("DecodeLog failed: %v", err)
	}
	if meas, _, _ := ParseLog(text); len(meas) != 2 {
		t.Errorf("expected 2 measures, got %v", meas)
	}
}

func TestParseLogLineTooLong(t *testing.T) {
	text := strings.Repeat("x", 2<<20) + "\ntphl=1e-10\n"
	meas, _, err := ParseLog(text)
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected bufio.ErrTooLong, got %v", err)
	}
	if meas != nil {
		t.Errorf("no measurements expected on a read error, got %v", meas)
	}
}

func TestDecodeLogPlain(t *testing.T) {
	text, err := DecodeLog([]byte(ngspiceLog))
	if err != nil {
		t.Fatal(err)
	}
	if text != ngspiceLog {
		t.Error("plain log should pass through unchanged")
	}
}
