package client

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	var viaS3 bool

	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a PDF to the current session",
		Long: `Uploads a PDF, replacing the session's document and clearing its history.

With --via-s3 the file is first staged in object storage through a presigned
URL and the server ingests it from there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUpload(cmd, args[0], viaS3, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&viaS3, "via-s3", false, "Stage the file in S3 before ingesting it")

	return cmd
}

func runUpload(cmd *cobra.Command, filePath string, viaS3, outputJSON bool) error {
	if !strings.EqualFold(strings.TrimSpace(fileExt(filePath)), ".pdf") {
		return fmt.Errorf("%s is not a .pdf file", filePath)
	}
	if _, err := os.Stat(filePath); err != nil {
		return fmt.Errorf("cannot read %s: %w", filePath, err)
	}

	api, sessionID, err := sessionClient(cmd)
	if err != nil {
		return err
	}
	documentPath := "/sessions/" + sessionID + "/document"

	var resp *APIResponse
	if viaS3 {
		resp, err = uploadViaS3(api, sessionID, filePath, !outputJSON)
	} else {
		resp, err = api.PostFile(documentPath, "file", filePath)
	}
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	session, err := decode[Session](resp)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(session)
	}
	if session.Document != nil {
		fmt.Printf("Indexed %s: %d pages, %d chunks\n", session.Document.Filename, session.Document.Pages, session.Document.Chunks)
	}
	return nil
}

func uploadViaS3(api *APIClient, sessionID, filePath string, showProgress bool) (*APIResponse, error) {
	resp, err := api.Post("/sessions/"+sessionID+"/document/upload-url", nil)
	if err != nil {
		return nil, err
	}
	staging, err := decode[UploadURL](resp)
	if err != nil {
		return nil, err
	}

	var onProgress ProgressFunc
	if showProgress {
		onProgress = func(sent, total int64) {
			if total > 0 {
				fmt.Fprintf(os.Stderr, "\rUploading... %d%%", sent*100/total)
			}
		}
	}
	if err := api.PutPresigned(staging.UploadURL, filePath, "application/pdf", onProgress); err != nil {
		return nil, err
	}
	if showProgress {
		fmt.Fprintln(os.Stderr)
	}

	return api.Post("/sessions/"+sessionID+"/document", map[string]string{"s3_key": staging.S3Key})
}

func fileExt(path string) string {
	if i := strings.LastIndex(path, "."); i >= 0 {
		return path[i:]
	}
	return ""
}
