package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	v1 "github.com/jbweber/rcloud/api/v1"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatVM formats a single VM as YAML.
func (f *YAMLFormatter) FormatVM(vm *v1.VM) (string, error) {
	data, err := yaml.Marshal(vm)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}
	return string(data), nil
}

// FormatVMList formats a list of VMs as a YAML stream, one document per VM.
func (f *YAMLFormatter) FormatVMList(vms []v1.VM) (string, error) {
	if len(vms) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i := range vms {
		data, err := yaml.Marshal(&vms[i])
		if err != nil {
			return "", fmt.Errorf("failed to marshal VM %s to YAML: %w", vms[i].Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}

// FormatImages formats images as a single YAML document.
func (f *YAMLFormatter) FormatImages(images []v1.Image) (string, error) {
	if images == nil {
		images = []v1.Image{}
	}
	data, err := yaml.Marshal(v1.ListImagesResponse{Images: images})
	if err != nil {
		return "", fmt.Errorf("failed to marshal images to YAML: %w", err)
	}
	return string(data), nil
}
