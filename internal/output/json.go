package output

import (
	"encoding/json"
	"fmt"

	v1 "github.com/jbweber/rcloud/api/v1"
)

// JSONFormatter formats resources as JSON, using the same shapes the API
// returns.
type JSONFormatter struct{}

// FormatVM formats a single VM as JSON.
func (f *JSONFormatter) FormatVM(vm *v1.VM) (string, error) {
	return marshalJSON(vm, "VM")
}

// FormatVMList formats VMs as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []v1.VM) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}
	return marshalJSON(vms, "VMs")
}

// FormatImages formats images as a ListImagesResponse object.
func (f *JSONFormatter) FormatImages(images []v1.Image) (string, error) {
	if images == nil {
		images = []v1.Image{}
	}
	return marshalJSON(v1.ListImagesResponse{Images: images}, "images")
}

func marshalJSON(v any, what string) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}
