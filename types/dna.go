package types

import "github.com/hc-network/gcond/common"

// Sharing declares how widely entries of a type replicate.
type Sharing string

const (
	SharingPublic  Sharing = "public"
	SharingPrivate Sharing = "private"
)

// EntryTypeDef is the manifest declaration of one application entry type.
type EntryTypeDef struct {
	Description       string                `json:"description,omitempty"`
	Sharing           Sharing               `json:"sharing"`
	ValidationPackage ValidationPackageKind `json:"validation_package,omitempty"`
}

// FnDeclaration declares one callable zome function. Public functions skip
// the capability check.
type FnDeclaration struct {
	Name   string `json:"name"`
	Public bool   `json:"public,omitempty"`
}

// Zome is one namespaced unit of application code: its wasm bytecode, the
// entry types it validates and the functions it exposes.
type Zome struct {
	Description string                  `json:"description,omitempty"`
	Code        []byte                  `json:"code"`
	EntryTypes  map[string]EntryTypeDef `json:"entry_types"`
	Functions   []FnDeclaration         `json:"functions"`
}

// Dna is the application manifest: a set of zomes plus configuration. It is
// the first entry on every agent's chain and never leaves the node.
type Dna struct {
	Name       string            `json:"name"`
	UUID       string            `json:"uuid"`
	Properties map[string]string `json:"properties,omitempty"`
	Zomes      map[string]Zome   `json:"zomes"`
}

// Address returns the DNA's content address, which identifies the network
// space all instances of this application join.
func (d *Dna) Address() common.Address {
	addr, err := AddressOfContent(d)
	if err != nil {
		panic("types: dna address: " + err.Error())
	}
	return addr
}

// ZomeForEntryType returns the zome declaring the given app entry type.
func (d *Dna) ZomeForEntryType(entryType string) (string, *Zome, bool) {
	for name, z := range d.Zomes {
		if _, ok := z.EntryTypes[entryType]; ok {
			zome := z
			return name, &zome, true
		}
	}
	return "", nil, false
}

// EntryTypeDef returns the manifest declaration for an app entry type.
func (d *Dna) EntryTypeDef(entryType string) (EntryTypeDef, bool) {
	for _, z := range d.Zomes {
		if def, ok := z.EntryTypes[entryType]; ok {
			return def, true
		}
	}
	return EntryTypeDef{}, false
}

// IsPublic reports whether entries of t replicate off the authoring node.
// System types other than %dna are public; app types follow their manifest
// sharing declaration, and undeclared types stay private.
func (d *Dna) IsPublic(t EntryType) bool {
	if t.IsSys() {
		return t.Publishable()
	}
	def, ok := d.EntryTypeDef(string(t))
	return ok && def.Sharing != SharingPrivate
}

// FnIsPublic reports whether (zome, fn) is declared with the public trait.
func (d *Dna) FnIsPublic(zome, fn string) bool {
	z, ok := d.Zomes[zome]
	if !ok {
		return false
	}
	for _, decl := range z.Functions {
		if decl.Name == fn {
			return decl.Public
		}
	}
	return false
}

// HasFn reports whether (zome, fn) exists in the manifest.
func (d *Dna) HasFn(zome, fn string) bool {
	z, ok := d.Zomes[zome]
	if !ok {
		return false
	}
	for _, decl := range z.Functions {
		if decl.Name == fn {
			return true
		}
	}
	return false
}
