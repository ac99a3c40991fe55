package startup

import (
	"strconv"
)

// Field identifies one of the keys a startup notification message can carry.
type Field int

// Startup notification keys, in wire order.
const (
	FieldID Field = iota
	FieldName
	FieldScreen
	FieldBin
	FieldIcon
	FieldDesktop
	FieldTimestamp
	FieldDescription
	FieldWmclass
	FieldSilent
	FieldApplicationID
	FieldLauncher
	FieldLaunchee
	FieldHostname
	FieldPid
	FieldCommand
	FieldFile
	FieldURL

	fieldCount
)

var fieldNames = [fieldCount]string{
	"ID",
	"NAME",
	"SCREEN",
	"BIN",
	"ICON",
	"DESKTOP",
	"TIMESTAMP",
	"DESCRIPTION",
	"WMCLASS",
	"SILENT",
	"APPLICATION_ID",
	"LAUNCHER",
	"LAUNCHEE",
	"HOSTNAME",
	"PID",
	"COMMAND",
	"FILE",
	"URL",
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, fieldCount)
	for i, name := range fieldNames {
		m[name] = Field(i)
	}
	return m
}()

// LookupField returns the field with the given wire key.
func LookupField(key string) (Field, bool) {
	f, ok := fieldsByName[key]
	return f, ok
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return "Field(" + strconv.Itoa(int(f)) + ")"
	}
	return fieldNames[f]
}

// Fields holds the optional string values of a startup sequence along with
// the parsed values of its numeric keys. The numeric shadows are only
// meaningful when the corresponding field is present.
type Fields struct {
	values  [fieldCount]string
	present uint32

	Screen    int
	Desktop   int
	Timestamp uint32
	Silent    int
	Pid       int
}

// Get returns the value of the given field and whether it is set.
func (f *Fields) Get(k Field) (string, bool) {
	if !f.Has(k) {
		return "", false
	}
	return f.values[k], true
}

// Value returns the value of the given field, or an empty string if unset.
func (f *Fields) Value(k Field) string {
	return f.values[k]
}

// Has returns whether the given field is set.
func (f *Fields) Has(k Field) bool {
	return f.present&(1<<uint(k)) != 0
}

// Set assigns a field and recomputes its numeric shadow.
func (f *Fields) Set(k Field, v string) {
	f.values[k] = v
	f.present |= 1 << uint(k)
	f.shadow(k)
}

// Delete unsets a field.
func (f *Fields) Delete(k Field) {
	f.values[k] = ""
	f.present &^= 1 << uint(k)
	f.shadow(k)
}

// Merge copies every field present in o over f. Fields missing from o are
// left untouched.
func (f *Fields) Merge(o *Fields) {
	for k := Field(0); k < fieldCount; k++ {
		if o.Has(k) {
			f.Set(k, o.values[k])
		}
	}
}

// Keys returns the set fields in wire order.
func (f *Fields) Keys() []Field {
	keys := make([]Field, 0, fieldCount)
	for k := Field(0); k < fieldCount; k++ {
		if f.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of set fields.
func (f *Fields) Len() int {
	n := 0
	for p := f.present; p != 0; p &= p - 1 {
		n++
	}
	return n
}

// Map returns the set fields keyed by their wire names.
func (f *Fields) Map() map[string]string {
	m := make(map[string]string, f.Len())
	for _, k := range f.Keys() {
		m[k.String()] = f.values[k]
	}
	return m
}

// Equal reports whether both records hold the same set of fields with the
// same values.
func (f *Fields) Equal(o *Fields) bool {
	return f.present == o.present && f.values == o.values
}

func (f *Fields) shadow(k Field) {
	v := f.values[k]
	switch k {
	case FieldScreen:
		f.Screen = leadingInt(v)
	case FieldDesktop:
		f.Desktop = leadingInt(v)
	case FieldTimestamp:
		f.Timestamp = uint32(leadingInt(v))
	case FieldSilent:
		f.Silent = leadingInt(v)
	case FieldPid:
		f.Pid = leadingInt(v)
	}
}

// leadingInt parses the optionally signed decimal prefix of s. Anything that
// does not start with a number yields zero.
func leadingInt(s string) int {
	i := 0
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	n := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		return -n
	}
	return n
}
