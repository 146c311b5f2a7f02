// Package uasdls implements the field dictionary for the MISB ST 0601.8
// UAS Datalink Local Set: typed decoding of known tags into a best-effort
// telemetry record. Unknown tags and width-mismatched values are retained
// raw rather than failing the record; partial telemetry is still useful.
package uasdls

import (
	"strconv"

	"github.com/zsiec/telemux/klv"
)

// UniversalKey is the 16-byte key identifying the UAS Datalink LS
// (MISB ST 0601.8).
var UniversalKey = [klv.UniversalKeySize]byte{
	0x06, 0x0e, 0x2b, 0x34, 0x02, 0x0b, 0x01, 0x01,
	0x0e, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00,
}

// Tag identifies a UAS Datalink LS field.
type Tag uint8

const (
	TagChecksum      Tag = 1
	TagUnixTimeStamp Tag = 2
	// Angle between longitudinal axis and True North measured in the
	// horizontal plane. Maps 0..65535 to 0..360 degrees.
	TagPlatformHeadingAngle Tag = 5
	// Angle between longitudinal axis and horizontal plane, positive above.
	// Maps -32767..32767 to +/-20 degrees; -32768 flags out of range.
	TagPlatformPitchAngle Tag = 6
	// Angle between transverse axis and the transverse-longitudinal plane,
	// positive for lowered right wing. Maps -32767..32767 to +/-50 degrees;
	// -32768 flags out of range.
	TagPlatformRollAngle       Tag = 7
	TagImageSourceSensor       Tag = 11
	TagImageCoordinateSystem   Tag = 12
	TagSensorLatitude          Tag = 13
	TagSensorLongitude         Tag = 14
	TagSensorTrueAltitude      Tag = 15
	TagSensorHorizontalFOV     Tag = 16
	TagSensorVerticalFOV       Tag = 17
	TagSensorRelativeAzimuth   Tag = 18
	TagSensorRelativeElevation Tag = 19
	TagSensorRelativeRoll      Tag = 20
	TagSlantRange              Tag = 21
	// ST 0601.8 specifies 2 bytes here, but recorded sample data carries 4.
	TagTargetWidth             Tag = 22
	TagFrameCenterLatitude     Tag = 23
	TagFrameCenterLongitude    Tag = 24
	TagFrameCenterElevation    Tag = 25
	TagTargetLocationLatitude  Tag = 40
	TagTargetLocationLongitude Tag = 41
	TagTargetLocationElevation Tag = 42
	// Meters/second.
	TagPlatformGroundSpeed Tag = 56
	TagGroundRange         Tag = 57
	TagVersionNumber       Tag = 65
)

// fieldDef describes how one tag's value bytes decode.
type fieldDef struct {
	name  string
	kind  Kind
	width int // expected value width in bytes; 0 means variable (strings)

	// linear mapping from the raw integer range to engineering units;
	// scale is the unit value per raw count, offset is added afterwards.
	scale  float64
	offset float64
}

var fields = map[Tag]fieldDef{
	TagChecksum:                {name: "Checksum", kind: KindUint, width: 2},
	TagUnixTimeStamp:           {name: "UnixTimeStamp", kind: KindTimestamp, width: 8},
	TagPlatformHeadingAngle:    {name: "PlatformHeadingAngle", kind: KindUint, width: 2, scale: 360.0 / 65535},
	TagPlatformPitchAngle:      {name: "PlatformPitchAngle", kind: KindInt, width: 2, scale: 20.0 / 32767},
	TagPlatformRollAngle:       {name: "PlatformRollAngle", kind: KindInt, width: 2, scale: 50.0 / 32767},
	TagImageSourceSensor:       {name: "ImageSourceSensor", kind: KindString},
	TagImageCoordinateSystem:   {name: "ImageCoordinateSystem", kind: KindString},
	TagSensorLatitude:          {name: "SensorLatitude", kind: KindInt, width: 4, scale: 90.0 / 2147483647},
	TagSensorLongitude:         {name: "SensorLongitude", kind: KindInt, width: 4, scale: 180.0 / 2147483647},
	TagSensorTrueAltitude:      {name: "SensorTrueAltitude", kind: KindUint, width: 2, scale: 19900.0 / 65535, offset: -900},
	TagSensorHorizontalFOV:     {name: "SensorHorizontalFOV", kind: KindUint, width: 2, scale: 180.0 / 65535},
	TagSensorVerticalFOV:       {name: "SensorVerticalFOV", kind: KindUint, width: 2, scale: 180.0 / 65535},
	TagSensorRelativeAzimuth:   {name: "SensorRelativeAzimuth", kind: KindUint, width: 4, scale: 360.0 / 4294967295},
	TagSensorRelativeElevation: {name: "SensorRelativeElevation", kind: KindInt, width: 4, scale: 180.0 / 2147483647},
	TagSensorRelativeRoll:      {name: "SensorRelativeRoll", kind: KindInt, width: 4, scale: 180.0 / 2147483647},
	TagSlantRange:              {name: "SlantRange", kind: KindUint, width: 4, scale: 5000000.0 / 4294967295},
	TagTargetWidth:             {name: "TargetWidth", kind: KindUint, width: 4},
	TagFrameCenterLatitude:     {name: "FrameCenterLatitude", kind: KindInt, width: 4, scale: 90.0 / 2147483647},
	TagFrameCenterLongitude:    {name: "FrameCenterLongitude", kind: KindInt, width: 4, scale: 180.0 / 2147483647},
	TagFrameCenterElevation:    {name: "FrameCenterElevation", kind: KindUint, width: 2, scale: 19900.0 / 65535, offset: -900},
	TagTargetLocationLatitude:  {name: "TargetLocationLatitude", kind: KindInt, width: 4, scale: 90.0 / 2147483647},
	TagTargetLocationLongitude: {name: "TargetLocationLongitude", kind: KindInt, width: 4, scale: 180.0 / 2147483647},
	TagTargetLocationElevation: {name: "TargetLocationElevation", kind: KindUint, width: 2, scale: 19900.0 / 65535, offset: -900},
	TagPlatformGroundSpeed:     {name: "PlatformGroundSpeed", kind: KindUint, width: 1, scale: 1},
	TagGroundRange:             {name: "GroundRange", kind: KindUint, width: 4, scale: 5000000.0 / 4294967295},
	TagVersionNumber:           {name: "VersionNumber", kind: KindUint, width: 1},
}

// Name returns the field name for a known tag, or "" for an unknown one.
func (t Tag) Name() string {
	return fields[t].name
}

// Known reports whether the dictionary defines a decoder for t.
func (t Tag) Known() bool {
	_, ok := fields[t]
	return ok
}

func (t Tag) String() string {
	if def, ok := fields[t]; ok {
		return def.name
	}
	return "Tag(" + strconv.Itoa(int(t)) + ")"
}
