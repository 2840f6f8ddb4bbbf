package packet

import (
	"fmt"

	"golang.org/x/text/encoding/charmap"

	"firestige.xyz/pktkit/pkg/view"
)

const (
	drdaLengthPos      = 0
	drdaMagicPos       = drdaLengthPos + 2
	drdaFormatPos      = drdaMagicPos + 1
	drdaCorrelationPos = drdaFormatPos + 1
	drdaDSSLength      = drdaCorrelationPos + 2
	drdaLength2Pos     = drdaDSSLength
	drdaCodePointPos   = drdaLength2Pos + 2
	DRDAHeaderLength   = drdaCodePointPos + 2

	drdaMagic          = 0xd0
	drdaChained        = 0x40
	drdaContinueOnErr  = 0x20
	drdaSameCorrelator = 0x10
	drdaTypeMask       = 0x0f
	drdaParamHeader    = 4
)

// DRDADSSType is the low nibble of the DSS format byte.
type DRDADSSType uint8

const (
	DRDARequest        DRDADSSType = 1
	DRDAReply          DRDADSSType = 2
	DRDAObject         DRDADSSType = 3
	DRDACommunication  DRDADSSType = 4
	DRDARequestNoReply DRDADSSType = 5
)

func (t DRDADSSType) String() string {
	switch t {
	case DRDARequest:
		return "Request"
	case DRDAReply:
		return "Reply"
	case DRDAObject:
		return "Object"
	case DRDACommunication:
		return "Communication"
	case DRDARequestNoReply:
		return "RequestNoReply"
	}
	return fmt.Sprintf("DRDADSSType(%d)", uint8(t))
}

// DDMCodePoint identifies a DDM command, reply, object or parameter.
type DDMCodePoint uint16

const (
	DDMTypDefNam DDMCodePoint = 0x002f
	DDMTypDefOvr DDMCodePoint = 0x0035
	DDMExcSat    DDMCodePoint = 0x1041
	DDMAccSec    DDMCodePoint = 0x106d
	DDMSecChk    DDMCodePoint = 0x106e
	DDMPrdID     DDMCodePoint = 0x112e
	DDMSrvClsNm  DDMCodePoint = 0x1147
	DDMSrvRlsLv  DDMCodePoint = 0x115a
	DDMExtNam    DDMCodePoint = 0x115e
	DDMSrvNam    DDMCodePoint = 0x116d
	DDMUsrID     DDMCodePoint = 0x11a0
	DDMPassword  DDMCodePoint = 0x11a1
	DDMSecMec    DDMCodePoint = 0x11a2
	DDMSecChkCd  DDMCodePoint = 0x11a4
	DDMSecChkRM  DDMCodePoint = 0x1219
	DDMMgrLvlLs  DDMCodePoint = 0x1404
	DDMExcSatRd  DDMCodePoint = 0x1443
	DDMAccSecRd  DDMCodePoint = 0x14ac
	DDMAccRDB    DDMCodePoint = 0x2001
	DDMCntQry    DDMCodePoint = 0x2006
	DDMExcSQLImm DDMCodePoint = 0x200a
	DDMExcSQLStt DDMCodePoint = 0x200b
	DDMOpnQry    DDMCodePoint = 0x200c
	DDMPrpSQLStt DDMCodePoint = 0x200d
	DDMRDBCmm    DDMCodePoint = 0x200e
	DDMRDBNam    DDMCodePoint = 0x2110
	DDMPkgNamCSN DDMCodePoint = 0x2113
	DDMQryBlkSz  DDMCodePoint = 0x2114
	DDMCrrTkn    DDMCodePoint = 0x2135
	DDMAccRDBRM  DDMCodePoint = 0x2201
	DDMOpnQryRM  DDMCodePoint = 0x2205
	DDMEndQryRM  DDMCodePoint = 0x220b
	DDMSQLCard   DDMCodePoint = 0x2408
	DDMSQLDARD   DDMCodePoint = 0x2411
	DDMSQLStt    DDMCodePoint = 0x2414
	DDMQryDta    DDMCodePoint = 0x241b
	DDMSQLAttr   DDMCodePoint = 0x2450
)

var ddmCodePointNames = map[DDMCodePoint]string{
	DDMTypDefNam: "TYPDEFNAM",
	DDMTypDefOvr: "TYPDEFOVR",
	DDMExcSat:    "EXCSAT",
	DDMAccSec:    "ACCSEC",
	DDMSecChk:    "SECCHK",
	DDMPrdID:     "PRDID",
	DDMSrvClsNm:  "SRVCLSNM",
	DDMSrvRlsLv:  "SRVRLSLV",
	DDMExtNam:    "EXTNAM",
	DDMSrvNam:    "SRVNAM",
	DDMUsrID:     "USRID",
	DDMPassword:  "PASSWORD",
	DDMSecMec:    "SECMEC",
	DDMSecChkCd:  "SECCHKCD",
	DDMSecChkRM:  "SECCHKRM",
	DDMMgrLvlLs:  "MGRLVLLS",
	DDMExcSatRd:  "EXCSATRD",
	DDMAccSecRd:  "ACCSECRD",
	DDMAccRDB:    "ACCRDB",
	DDMCntQry:    "CNTQRY",
	DDMExcSQLImm: "EXCSQLIMM",
	DDMExcSQLStt: "EXCSQLSTT",
	DDMOpnQry:    "OPNQRY",
	DDMPrpSQLStt: "PRPSQLSTT",
	DDMRDBCmm:    "RDBCMM",
	DDMRDBNam:    "RDBNAM",
	DDMPkgNamCSN: "PKGNAMCSN",
	DDMQryBlkSz:  "QRYBLKSZ",
	DDMCrrTkn:    "CRRTKN",
	DDMAccRDBRM:  "ACCRDBRM",
	DDMOpnQryRM:  "OPNQRYRM",
	DDMEndQryRM:  "ENDQRYRM",
	DDMSQLCard:   "SQLCARD",
	DDMSQLDARD:   "SQLDARD",
	DDMSQLStt:    "SQLSTT",
	DDMQryDta:    "QRYDTA",
	DDMSQLAttr:   "SQLATTR",
}

func (c DDMCodePoint) String() string {
	if s, ok := ddmCodePointNames[c]; ok {
		return s
	}
	return fmt.Sprintf("DDM(0x%04x)", uint16(c))
}

// ddmTextCodePoints carry EBCDIC character data.
var ddmTextCodePoints = map[DDMCodePoint]bool{
	DDMTypDefNam: true,
	DDMPrdID:     true,
	DDMSrvClsNm:  true,
	DDMSrvRlsLv:  true,
	DDMExtNam:    true,
	DDMSrvNam:    true,
	DDMUsrID:     true,
	DDMPassword:  true,
	DDMRDBNam:    true,
}

// DRDAParameter is one parameter of a DDM object, aliasing the frame.
type DRDAParameter struct {
	v view.View
}

func NewDRDAParameter(cp DDMCodePoint, data []byte) DRDAParameter {
	v := view.Alloc(drdaParamHeader + len(data))
	v.PutUint16(0, uint16(v.Len()))
	v.PutUint16(2, uint16(cp))
	v.PutBytes(drdaParamHeader, data)
	return DRDAParameter{v}
}

// NewDRDATextParameter encodes s as EBCDIC (code page 037).
func NewDRDATextParameter(cp DDMCodePoint, s string) (DRDAParameter, error) {
	b, err := charmap.CodePage037.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return DRDAParameter{}, fmt.Errorf("pktkit: encode %s as EBCDIC: %w", cp, err)
	}
	return NewDRDAParameter(cp, b), nil
}

func (p DRDAParameter) Length() uint16 { return p.v.Uint16(0) }

func (p DRDAParameter) CodePoint() DDMCodePoint { return DDMCodePoint(p.v.Uint16(2)) }

func (p DRDAParameter) Len() int { return p.v.Len() }

func (p DRDAParameter) Bytes() []byte { return p.v.Bytes() }

// Data is the parameter value, clamped to the bytes present.
func (p DRDAParameter) Data() []byte {
	if p.v.Len() <= drdaParamHeader {
		return nil
	}
	return p.v.Field(drdaParamHeader, p.v.Len()-drdaParamHeader)
}

// Text decodes the value as EBCDIC (code page 037).
func (p DRDAParameter) Text() string {
	b, err := charmap.CodePage037.NewDecoder().Bytes(p.Data())
	if err != nil {
		return ""
	}
	return string(b)
}

func (p DRDAParameter) String() string {
	if ddmTextCodePoints[p.CodePoint()] {
		return fmt.Sprintf("%s(%q)", p.CodePoint(), p.Text())
	}
	return fmt.Sprintf("%s(%x)", p.CodePoint(), p.Data())
}

func drdaParamSize(rest view.View) (int, bool) {
	if rest.Len() < drdaParamHeader {
		return drdaParamHeader, true
	}
	n := int(rest.Uint16(0))
	if n < drdaParamHeader {
		return 0, false
	}
	return n, true
}

// DRDA is one DSS carrying a DDM object. A following DSS of the same chain
// decodes as the payload.
type DRDA struct {
	Base
}

func NewDRDA(cp DDMCodePoint, t DRDADSSType, correlation uint16, params ...DRDAParameter) *DRDA {
	m := &DRDA{}
	m.newHeader(DRDAHeaderLength)
	m.header.PutUint8(drdaMagicPos, drdaMagic)
	m.header.PutUint8(drdaFormatPos, uint8(t)&drdaTypeMask)
	m.header.PutUint16(drdaCorrelationPos, correlation)
	m.header.PutUint16(drdaCodePointPos, uint16(cp))
	m.SetParameters(params...)
	return m
}

// looksLikeDRDA checks the DSS magic and the consistency of the two lengths.
func looksLikeDRDA(data view.View) bool {
	if data.Len() < DRDAHeaderLength || data.Uint8(drdaMagicPos) != drdaMagic {
		return false
	}
	n := int(data.Uint16(drdaLengthPos))
	return n >= DRDAHeaderLength && int(data.Uint16(drdaLength2Pos)) == n-drdaDSSLength
}

func decodeDRDA(d *decoder, data view.View) (Packet, error) {
	if data.Len() < DRDAHeaderLength {
		return nil, mismatch(LayerTypeDRDA, data.Offset(), ErrPacketTooShort, "have %d bytes, need %d", data.Len(), DRDAHeaderLength)
	}
	if !looksLikeDRDA(data) {
		return nil, mismatch(LayerTypeDRDA, data.Offset(), ErrInvalidLength, "no DSS header")
	}
	n := int(data.Uint16(drdaLengthPos))
	if n > data.Len() {
		// Segmented DSS: keep the part in this payload.
		n = data.Len()
	}
	m := &DRDA{}
	m.header = data.Slice(0, n)
	if d.strict {
		if _, err := m.parseParameters(true); err != nil {
			return nil, err
		}
	}
	if err := d.decodePayload(&m.Base, m.header.Encapsulated(-1), decodeDRDA); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DRDA) LayerType() LayerType { return LayerTypeDRDA }

// Length is the DSS length, DSS header included.
func (m *DRDA) Length() uint16 { return m.header.Uint16(drdaLengthPos) }

func (m *DRDA) Magic() uint8 { return m.header.Uint8(drdaMagicPos) }

func (m *DRDA) Format() uint8 { return m.header.Uint8(drdaFormatPos) }

func (m *DRDA) DSSType() DRDADSSType { return DRDADSSType(m.Format() & drdaTypeMask) }

// Chained reports whether another DSS of the same chain follows.
func (m *DRDA) Chained() bool { return m.Format()&drdaChained != 0 }

func (m *DRDA) SetChained(chained bool) {
	f := m.Format() &^ drdaChained
	if chained {
		f |= drdaChained
	}
	m.header.PutUint8(drdaFormatPos, f)
}

func (m *DRDA) ContinueOnError() bool { return m.Format()&drdaContinueOnErr != 0 }

func (m *DRDA) SameCorrelator() bool { return m.Format()&drdaSameCorrelator != 0 }

func (m *DRDA) CorrelationID() uint16 { return m.header.Uint16(drdaCorrelationPos) }

// DDMLength is the length of the DDM object, its own header included.
func (m *DRDA) DDMLength() uint16 { return m.header.Uint16(drdaLength2Pos) }

func (m *DRDA) CodePoint() DDMCodePoint { return DDMCodePoint(m.header.Uint16(drdaCodePointPos)) }

func (m *DRDA) parseParameters(strict bool) ([]DRDAParameter, error) {
	region := m.header.Slice(DRDAHeaderLength, m.header.Len()-DRDAHeaderLength)
	views, err := splitOptions(region, strict, LayerTypeDRDA, drdaParamSize)
	params := make([]DRDAParameter, 0, len(views))
	for _, v := range views {
		params = append(params, DRDAParameter{v})
	}
	return params, err
}

// Parameters parses the parameter list on every call.
func (m *DRDA) Parameters() []DRDAParameter {
	params, _ := m.parseParameters(false)
	return params
}

// Parameter returns the first parameter with the given code point.
func (m *DRDA) Parameter(cp DDMCodePoint) (DRDAParameter, bool) {
	for _, p := range m.Parameters() {
		if p.CodePoint() == cp {
			return p, true
		}
	}
	return DRDAParameter{}, false
}

// SetParameters replaces the parameters and refreshes both lengths. The DSS
// moves to a new buffer.
func (m *DRDA) SetParameters(params ...DRDAParameter) {
	raw := make([][]byte, len(params))
	for i, p := range params {
		raw[i] = p.Bytes()
	}
	m.header = joinOptions(m.header.Field(0, DRDAHeaderLength), raw, 0)
	m.UpdateLength()
}

func (m *DRDA) UpdateLength() {
	m.header.PutUint16(drdaLengthPos, uint16(m.header.Len()))
	m.header.PutUint16(drdaLength2Pos, uint16(m.header.Len()-drdaDSSLength))
}

func (m *DRDA) updateCalculatedValues(Network) { m.UpdateLength() }

func (m *DRDA) Fields(verbose bool) []Field {
	f := []Field{
		{"CodePoint", m.CodePoint()},
		{"DSSType", m.DSSType()},
		{"CorrelationID", m.CorrelationID()},
	}
	if verbose {
		f = append(f,
			Field{"Length", m.Length()},
			Field{"DDMLength", m.DDMLength()},
			Field{"Chained", m.Chained()},
		)
	}
	for _, p := range m.Parameters() {
		f = append(f, Field{"Parameter", p})
	}
	return f
}

func (m *DRDA) String() string { return formatLayer(m, false) }
