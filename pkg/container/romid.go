/*
Package container implements the Object Container (spec §3/§4.6, C7): one
record of a pure class, keyed internally by ROMID (real-object-member
identifier) so that nested, multi-valued sub-class records can live in a
single flat sorted map.
*/
package container

// ROMID is the triple (classID, objectID, memberID) used to key every
// value inside a container, with total order class then object then
// member (spec §3 "ROMID").
type ROMID struct {
	ClassID  uint32
	ObjectID uint32
	MemberID uint32
}

// Less implements the ROMID total order: class then object then member.
func (r ROMID) Less(other ROMID) bool {
	if r.ClassID != other.ClassID {
		return r.ClassID < other.ClassID
	}
	if r.ObjectID != other.ObjectID {
		return r.ObjectID < other.ObjectID
	}
	return r.MemberID < other.MemberID
}

// rangeForClass returns the ROMID half-open range [classId:0:0,
// classId+1:0:0) used by listSubs to scan all embedded sub-records of one
// class ID (spec §4.6 "listSubs").
func rangeForClass(classID uint32) (lo, hi ROMID) {
	return ROMID{ClassID: classID}, ROMID{ClassID: classID + 1}
}
