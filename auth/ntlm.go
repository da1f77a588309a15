// Copyright 2021 The httpx Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/md4"
	"golang.org/x/text/encoding/unicode"
)

// NTLM message construction follows MS-NLMP. Only NTLMv2 responses are
// produced.

const (
	ntlmNegotiateUnicode         = 0x00000001
	ntlmRequestTarget            = 0x00000004
	ntlmNegotiateNTLM            = 0x00000200
	ntlmNegotiateAlwaysSign      = 0x00008000
	ntlmNegotiateExtendedSession = 0x00080000
	ntlmNegotiateTargetInfo      = 0x00800000
	ntlmNegotiate128             = 0x20000000
	ntlmNegotiate56              = 0x80000000

	ntlmNegotiateFlags = ntlmNegotiateUnicode | ntlmRequestTarget | ntlmNegotiateNTLM |
		ntlmNegotiateAlwaysSign | ntlmNegotiateExtendedSession | ntlmNegotiateTargetInfo |
		ntlmNegotiate128 | ntlmNegotiate56

	ntlmAvEOL       = 0
	ntlmAvTimestamp = 7
)

var ntlmSignature = []byte("NTLMSSP\x00")

var errNTLMMalformed = errors.New("malformed NTLM challenge message")

// ntlmChallenge is a decoded NTLM CHALLENGE_MESSAGE (type 2).
type ntlmChallenge struct {
	flags           uint32
	serverChallenge [8]byte
	targetName      []byte
	targetInfo      []byte
}

// ntlmNegotiateMessage returns an NTLM NEGOTIATE_MESSAGE (type 1) with
// empty domain and workstation fields.
func ntlmNegotiateMessage() []byte {
	b := make([]byte, 32)
	copy(b, ntlmSignature)
	binary.LittleEndian.PutUint32(b[8:], 1)
	binary.LittleEndian.PutUint32(b[12:], ntlmNegotiateFlags)
	putSecBuf(b[16:], 0, 32)
	putSecBuf(b[24:], 0, 32)
	return b
}

func parseNTLMChallenge(b []byte) (*ntlmChallenge, error) {
	if len(b) < 32 || !bytes.Equal(b[:8], ntlmSignature) || binary.LittleEndian.Uint32(b[8:]) != 2 {
		return nil, errNTLMMalformed
	}
	c := &ntlmChallenge{
		flags: binary.LittleEndian.Uint32(b[20:]),
	}
	copy(c.serverChallenge[:], b[24:32])
	var err error
	if c.targetName, err = secBuf(b, 12); err != nil {
		return nil, err
	}
	if len(b) >= 48 {
		if c.targetInfo, err = secBuf(b, 40); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// secBuf returns the payload addressed by the security buffer at off.
func secBuf(b []byte, off int) ([]byte, error) {
	n := int(binary.LittleEndian.Uint16(b[off:]))
	start := int(binary.LittleEndian.Uint32(b[off+4:]))
	if n == 0 {
		return nil, nil
	}
	if start < 0 || start+n > len(b) {
		return nil, errNTLMMalformed
	}
	return b[start : start+n], nil
}

func putSecBuf(b []byte, n, off int) {
	binary.LittleEndian.PutUint16(b[0:], uint16(n))
	binary.LittleEndian.PutUint16(b[2:], uint16(n))
	binary.LittleEndian.PutUint32(b[4:], uint32(off))
}

// ntlmCredentials are the inputs to an NTLM AUTHENTICATE_MESSAGE.
type ntlmCredentials struct {
	user        string
	domain      string
	password    string
	workstation string
}

// splitNTLMPrincipal splits a principal of the form DOMAIN\user. If the
// principal has no domain part, defaultDomain is used.
func splitNTLMPrincipal(principal, defaultDomain string) (domain, user string) {
	if d, u, ok := strings.Cut(principal, `\`); ok {
		return d, u
	}
	return defaultDomain, principal
}

// ntlmAuthenticateMessage returns an NTLM AUTHENTICATE_MESSAGE (type 3)
// answering c with an NTLMv2 response.
func ntlmAuthenticateMessage(c *ntlmChallenge, cred ntlmCredentials, clientChallenge [8]byte, now time.Time) ([]byte, error) {
	domain := cred.domain
	if domain == "" && len(c.targetName) > 0 && c.flags&ntlmNegotiateUnicode != 0 {
		if d, err := utf16le.NewDecoder().Bytes(c.targetName); err == nil {
			domain = string(d)
		}
	}
	v2, err := ntowfv2(cred.user, cred.password, domain)
	if err != nil {
		return nil, err
	}
	ts, ok := ntlmAvTimestampOf(c.targetInfo)
	if !ok {
		ts = fileTime(now)
	}
	blob := ntlmBlob(ts, clientChallenge, c.targetInfo)
	nt := ntResponseV2(v2, c.serverChallenge[:], blob)
	lm := lmResponseV2(v2, c.serverChallenge[:], clientChallenge[:])

	dom, err := utf16le.NewEncoder().Bytes([]byte(domain))
	if err != nil {
		return nil, err
	}
	usr, err := utf16le.NewEncoder().Bytes([]byte(cred.user))
	if err != nil {
		return nil, err
	}
	ws, err := utf16le.NewEncoder().Bytes([]byte(cred.workstation))
	if err != nil {
		return nil, err
	}

	const header = 64
	b := make([]byte, header, header+len(dom)+len(usr)+len(ws)+len(lm)+len(nt))
	copy(b, ntlmSignature)
	binary.LittleEndian.PutUint32(b[8:], 3)
	off := header
	put := func(field int, p []byte) {
		putSecBuf(b[field:], len(p), off)
		b = append(b, p...)
		off += len(p)
	}
	put(28, dom)
	put(36, usr)
	put(44, ws)
	put(12, lm)
	put(20, nt)
	putSecBuf(b[52:], 0, off)
	flags := (c.flags & ntlmNegotiateFlags) | ntlmNegotiateUnicode | ntlmNegotiateNTLM
	binary.LittleEndian.PutUint32(b[60:], flags)
	return b, nil
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// ntowfv1 is the NT one-way function: MD4 of the UTF-16LE password.
func ntowfv1(password string) ([]byte, error) {
	p, err := utf16le.NewEncoder().Bytes([]byte(password))
	if err != nil {
		return nil, err
	}
	h := md4.New()
	h.Write(p)
	return h.Sum(nil), nil
}

func ntowfv2(user, password, domain string) ([]byte, error) {
	v1, err := ntowfv1(password)
	if err != nil {
		return nil, err
	}
	ud, err := utf16le.NewEncoder().Bytes([]byte(strings.ToUpper(user) + domain))
	if err != nil {
		return nil, err
	}
	return hmacMD5(v1, ud), nil
}

func lmResponseV2(v2, serverChallenge, clientChallenge []byte) []byte {
	return append(hmacMD5(v2, serverChallenge, clientChallenge), clientChallenge...)
}

func ntResponseV2(v2, serverChallenge, blob []byte) []byte {
	return append(hmacMD5(v2, serverChallenge, blob), blob...)
}

// ntlmBlob builds the NTLMv2_CLIENT_CHALLENGE structure.
func ntlmBlob(timestamp uint64, clientChallenge [8]byte, targetInfo []byte) []byte {
	b := make([]byte, 28, 28+len(targetInfo)+4)
	b[0] = 1
	b[1] = 1
	binary.LittleEndian.PutUint64(b[8:], timestamp)
	copy(b[16:], clientChallenge[:])
	b = append(b, targetInfo...)
	return append(b, 0, 0, 0, 0)
}

func ntlmAvTimestampOf(targetInfo []byte) (uint64, bool) {
	for b := targetInfo; len(b) >= 4; {
		id := binary.LittleEndian.Uint16(b)
		n := int(binary.LittleEndian.Uint16(b[2:]))
		if id == ntlmAvEOL || len(b) < 4+n {
			break
		}
		if id == ntlmAvTimestamp && n == 8 {
			return binary.LittleEndian.Uint64(b[4:]), true
		}
		b = b[4+n:]
	}
	return 0, false
}

// fileTime converts t to a Windows FILETIME: 100ns intervals since
// January 1, 1601 UTC.
func fileTime(t time.Time) uint64 {
	const epochDelta = 116444736000000000
	return uint64(t.UnixNano()/100) + epochDelta
}

func hmacMD5(key []byte, data ...[]byte) []byte {
	h := hmac.New(md5.New, key)
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}
