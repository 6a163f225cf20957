package remote

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/usaschooldata/schooldata/pkg/types"
)

// Field numbers of membership.v1.TotalEnrollment.
const (
	fieldSchoolYear      protowire.Number = 1
	fieldTotal           protowire.Number = 2
	fieldNativeAmerican  protowire.Number = 3
	fieldAsian           protowire.Number = 4
	fieldBlack           protowire.Number = 5
	fieldHispanic        protowire.Number = 6
	fieldPacificIslander protowire.Number = 7
	fieldMultiracial     protowire.Number = 8
	fieldWhite           protowire.Number = 9
	fieldMale            protowire.Number = 10
	fieldFemale          protowire.Number = 11
	fieldFirstGrade      protowire.Number = 12 // grade_pk; grades follow in GradeValues order
)

// wireMessage is implemented by every message the codec understands.
type wireMessage interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// TotalEnrollment is one year of pre-aggregated enrollment.
type TotalEnrollment struct {
	Record types.YearRecord
}

func (m *TotalEnrollment) counts() []*int64 {
	r := &m.Record
	out := []*int64{&r.Total, &r.NativeAmerican, &r.Asian, &r.Black, &r.Hispanic,
		&r.PacificIslander, &r.Multiracial, &r.White, &r.Male, &r.Female}
	for i := range r.Grades {
		out = append(out, &r.Grades[i])
	}
	return out
}

func (m *TotalEnrollment) marshal() []byte {
	var b []byte
	b = appendString(b, fieldSchoolYear, string(m.Record.SchoolYear))
	for i, v := range m.counts() {
		if *v != 0 {
			b = protowire.AppendTag(b, fieldTotal+protowire.Number(i), protowire.VarintType)
			b = protowire.AppendVarint(b, uint64(int32(*v)))
		}
	}
	return b
}

func (m *TotalEnrollment) unmarshal(b []byte) error {
	counts := m.counts()
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldSchoolYear && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Record.SchoolYear = types.SchoolYear(v)
			return n, protowire.ParseError(n)
		case num >= fieldTotal && int(num-fieldTotal) < len(counts) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			*counts[num-fieldTotal] = int64(int32(v))
			return n, protowire.ParseError(n)
		}
		return skip(num, typ, b)
	})
}

// GetMembershipRequest asks for an entity's full history.
type GetMembershipRequest struct {
	NCESSCH string
}

func (m *GetMembershipRequest) marshal() []byte {
	return appendString(nil, 1, m.NCESSCH)
}

func (m *GetMembershipRequest) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.NCESSCH = v
			return n, protowire.ParseError(n)
		}
		return skip(num, typ, b)
	})
}

// GetMembershipResponse carries one record per year.
type GetMembershipResponse struct {
	NCESSCH string
	ByYear  []*TotalEnrollment
}

func (m *GetMembershipResponse) marshal() []byte {
	b := appendString(nil, 1, m.NCESSCH)
	for _, rec := range m.ByYear {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, rec.marshal())
	}
	return b
}

func (m *GetMembershipResponse) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.NCESSCH = v
			return n, protowire.ParseError(n)
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			rec := &TotalEnrollment{}
			if err := rec.unmarshal(v); err != nil {
				return n, err
			}
			m.ByYear = append(m.ByYear, rec)
			return n, nil
		}
		return skip(num, typ, b)
	})
}

// GetMembershipSummaryRequest asks for one year of an entity.
type GetMembershipSummaryRequest struct {
	NCESSCH    string
	SchoolYear string
}

func (m *GetMembershipSummaryRequest) marshal() []byte {
	b := appendString(nil, 1, m.NCESSCH)
	return appendString(b, 2, m.SchoolYear)
}

func (m *GetMembershipSummaryRequest) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType && (num == 1 || num == 2) {
			v, n := protowire.ConsumeString(b)
			if num == 1 {
				m.NCESSCH = v
			} else {
				m.SchoolYear = v
			}
			return n, protowire.ParseError(n)
		}
		return skip(num, typ, b)
	})
}

// GetMembershipSummaryResponse carries one year's record.
type GetMembershipSummaryResponse struct {
	NCESSCH string
	Summary *TotalEnrollment
}

func (m *GetMembershipSummaryResponse) marshal() []byte {
	b := appendString(nil, 1, m.NCESSCH)
	if m.Summary != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Summary.marshal())
	}
	return b
}

func (m *GetMembershipSummaryResponse) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.NCESSCH = v
			return n, protowire.ParseError(n)
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			m.Summary = &TotalEnrollment{}
			return n, m.Summary.unmarshal(v)
		}
		return skip(num, typ, b)
	})
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// walk iterates the fields of b. fn consumes one field value and returns
// its length.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("remote: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if m < 0 || err != nil {
			if err == nil {
				err = protowire.ParseError(m)
			}
			return fmt.Errorf("remote: field %d: %w", num, err)
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	return n, protowire.ParseError(n)
}
