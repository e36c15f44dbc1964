// Package flashing reflashes a device through fastboot following a
// per-device-type profile: which partitions to erase, which images go
// where, and how long to wait for the device to come back afterwards.
package flashing

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hilcomm/adb"
	"hilcomm/fastboot"
	"hilcomm/log"
)

// Step flashes one image file (relative to the image directory) to one
// partition.
type Step struct {
	Partition string
	Image     string
}

// Profile describes the flashing procedure of one device type.
type Profile struct {
	Name string
	// Erase lists partitions wiped before flashing everything.
	Erase []string
	// Steps is the ordered flash sequence.
	Steps []Step
	// AndroidSteps is the subset flashed by FlashAndroid.
	AndroidSteps []Step
	// FlashTimeout bounds a single flash step.
	FlashTimeout time.Duration
	// BootTimeout bounds waiting for Android after the post-flash reboot.
	BootTimeout time.Duration
}

var profiles = map[string]Profile{
	"IHU": {
		Name:  "IHU",
		Erase: []string{"metadata", "userdata"},
		Steps: []Step{
			{Partition: "abl", Image: "abl.img"},
			{Partition: "boot", Image: "boot.img"},
			{Partition: "dtbo", Image: "dtbo.img"},
			{Partition: "vbmeta", Image: "vbmeta.img"},
			{Partition: "super", Image: "super.img"},
		},
		AndroidSteps: []Step{
			{Partition: "boot", Image: "boot.img"},
			{Partition: "super", Image: "super.img"},
		},
		FlashTimeout: 5 * time.Minute,
		BootTimeout:  6 * time.Minute,
	},
	"DHU": {
		Name:  "DHU",
		Erase: []string{"metadata"},
		Steps: []Step{
			{Partition: "boot_a", Image: "boot.img"},
			{Partition: "system_a", Image: "system.img"},
			{Partition: "vendor_a", Image: "vendor.img"},
		},
		AndroidSteps: []Step{
			{Partition: "system_a", Image: "system.img"},
		},
		FlashTimeout: 5 * time.Minute,
		BootTimeout:  6 * time.Minute,
	},
}

// ProfileFor returns the flashing profile of a device type.
func ProfileFor(deviceType string) (Profile, error) {
	p, ok := profiles[deviceType]
	if !ok {
		return Profile{}, fmt.Errorf("flashing: no profile for device type %q", deviceType)
	}
	return p, nil
}

// Flasher drives one flashing run: enter fastboot over adb, erase and
// flash per the profile, reboot and wait for Android.
type Flasher struct {
	adb      *adb.Adb
	fastboot *fastboot.Fastboot
	profile  Profile
	imageDir string
}

func NewFlasher(a *adb.Adb, fb *fastboot.Fastboot, profile Profile, imageDir string) *Flasher {
	return &Flasher{adb: a, fastboot: fb, profile: profile, imageDir: imageDir}
}

// FlashAll erases the profile's partitions and flashes the full image
// set, then boots Android and waits for it.
func (f *Flasher) FlashAll() error {
	return f.flash(f.profile.Steps, true)
}

// FlashAndroid flashes only the Android images, keeping user data.
func (f *Flasher) FlashAndroid() error {
	steps := f.profile.AndroidSteps
	if len(steps) == 0 {
		steps = f.profile.Steps
	}
	return f.flash(steps, false)
}

func (f *Flasher) flash(steps []Step, erase bool) error {
	if err := f.checkImages(steps); err != nil {
		return err
	}
	if err := f.enterFastboot(); err != nil {
		return err
	}

	if erase {
		for _, partition := range f.profile.Erase {
			if err := f.fastboot.Erase(partition, 0); err != nil {
				return err
			}
		}
	}
	for _, step := range steps {
		image := filepath.Join(f.imageDir, step.Image)
		if err := f.fastboot.Flash(step.Partition, image, f.profile.FlashTimeout); err != nil {
			return err
		}
	}

	log.InfoLog.Printf("flashing done, rebooting to android")
	if err := f.fastboot.Reboot(""); err != nil {
		return err
	}
	bootTimeout := f.profile.BootTimeout
	if bootTimeout <= 0 {
		bootTimeout = 6 * time.Minute
	}
	if err := f.adb.WaitForState(adb.StateDevice, adb.WaitOptions{Timeout: bootTimeout}); err != nil {
		return err
	}
	return f.adb.WaitForBootComplete(adb.WaitOptions{Timeout: bootTimeout})
}

// checkImages verifies every image file exists before touching the
// device. A half-flashed unit is much more expensive than this stat.
func (f *Flasher) checkImages(steps []Step) error {
	for _, step := range steps {
		image := filepath.Join(f.imageDir, step.Image)
		if _, err := os.Stat(image); err != nil {
			return fmt.Errorf("flashing: image %s for partition %s: %w", image, step.Partition, err)
		}
	}
	return nil
}

// enterFastboot puts the device in fastboot mode if it is not there
// already, rebooting it over adb.
func (f *Flasher) enterFastboot() error {
	state, err := f.fastboot.GetState()
	if err == nil && state != fastboot.StateNotFound {
		log.InfoLog.Printf("device already in %s mode", state)
		return nil
	}

	log.InfoLog.Printf("rebooting device to fastboot over adb")
	if err := f.adb.TriggerReboot("fastboot"); err != nil {
		return err
	}
	deadline := time.Now().Add(2 * time.Minute)
	for {
		state, err := f.fastboot.GetState()
		if err == nil && state != fastboot.StateNotFound {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("flashing: device did not enter fastboot mode")
		}
		time.Sleep(2 * time.Second)
	}
}
