// Package paths provides centralized path construction for the bentobox
// data directory.
//
// Directory Structure:
//
//	{dataHome}/bento/
//	  {name}/
//	    config.yaml          instance config, written once at create
//	    id.pid               daemon pid file, present while running
//	    id.sock              control socket, bound while running
//	    id.stdout.log        daemon stdout (readiness/exit events)
//	    id.stder.log         daemon stderr
//	    apple-machine-id      stable machine identity blob
//	    serial.log            serial console transcript
//	    rootfs.img             default root disk (optional)
//	    cidata.iso              cloud-init seed (optional)
//	  images/
//	    registry.json
//	    {image-id}/
//	      rootfs.img
package paths

import "path/filepath"

// Paths provides typed path construction for the bentobox data directory.
type Paths struct {
	dataHome string
}

// New creates a new Paths instance rooted at dataHome (typically
// XDG_DATA_HOME or ~/.local/share).
func New(dataHome string) *Paths {
	return &Paths{dataHome: dataHome}
}

// Root returns the bentobox root directory under the data home.
func (p *Paths) Root() string {
	return filepath.Join(p.dataHome, "bento")
}

// InstanceDir returns the directory for a named instance.
func (p *Paths) InstanceDir(name string) string {
	return filepath.Join(p.Root(), name)
}

// InstanceConfig returns the path to an instance's config.yaml.
func (p *Paths) InstanceConfig(name string) string {
	return filepath.Join(p.InstanceDir(name), "config.yaml")
}

// InstancePID returns the path to an instance's daemon pid file.
func (p *Paths) InstancePID(name string) string {
	return filepath.Join(p.InstanceDir(name), "id.pid")
}

// InstanceSocket returns the path to an instance's control socket.
func (p *Paths) InstanceSocket(name string) string {
	return filepath.Join(p.InstanceDir(name), "id.sock")
}

// InstanceStdoutLog returns the path to an instance's daemon stdout log.
func (p *Paths) InstanceStdoutLog(name string) string {
	return filepath.Join(p.InstanceDir(name), "id.stdout.log")
}

// InstanceStderrLog returns the path to an instance's daemon stderr log.
func (p *Paths) InstanceStderrLog(name string) string {
	return filepath.Join(p.InstanceDir(name), "id.stder.log")
}

// InstanceMachineID returns the path to an instance's machine identity blob.
func (p *Paths) InstanceMachineID(name string) string {
	return filepath.Join(p.InstanceDir(name), "apple-machine-id")
}

// InstanceSerialLog returns the path to an instance's serial console log.
func (p *Paths) InstanceSerialLog(name string) string {
	return filepath.Join(p.InstanceDir(name), "serial.log")
}

// InstanceRootDisk returns the path to an instance's default root disk.
func (p *Paths) InstanceRootDisk(name string) string {
	return filepath.Join(p.InstanceDir(name), "rootfs.img")
}

// InstanceCidataISO returns the path to an instance's cloud-init seed ISO.
func (p *Paths) InstanceCidataISO(name string) string {
	return filepath.Join(p.InstanceDir(name), "cidata.iso")
}

// ImagesDir returns the root image store directory.
func (p *Paths) ImagesDir() string {
	return filepath.Join(p.dataHome, "bento", "images")
}

// ImageRegistry returns the path to the image store's registry.json.
func (p *Paths) ImageRegistry() string {
	return filepath.Join(p.ImagesDir(), "registry.json")
}

// ImageDir returns the directory for a single image id.
func (p *Paths) ImageDir(imageID string) string {
	return filepath.Join(p.ImagesDir(), imageID)
}

// ImageRootfs returns the path to an image's decompressed root disk.
func (p *Paths) ImageRootfs(imageID string) string {
	return filepath.Join(p.ImageDir(imageID), "rootfs.img")
}
