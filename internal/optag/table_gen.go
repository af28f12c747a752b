// The marked block is rewritten by tagsync from idl/mukon.json; do not edit it by hand.

package optag

// BEGIN GENERATED OPERATION TAGS
var generatedTags = []entry{
	{name: "accept", tag: Tag{0x41, 0x96, 0x46, 0xd8, 0x85, 0x06, 0x6b, 0x04}},
	{name: "invite", tag: Tag{0xf2, 0x18, 0xeb, 0xe1, 0x85, 0xd3, 0xbd, 0xfa}},
	{name: "register", tag: Tag{0xd3, 0x7c, 0x43, 0x0f, 0xd3, 0xc2, 0xb2, 0xf0}},
	{name: "reject", tag: Tag{0x87, 0x07, 0x3f, 0x55, 0x83, 0x72, 0x6f, 0xe0}},
	{name: "update_profile", tag: Tag{0x62, 0x43, 0x63, 0xce, 0x56, 0x73, 0xaf, 0x01}},
}

// END GENERATED OPERATION TAGS
