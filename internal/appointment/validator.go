package appointment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Resources are the reference records a booking request resolved to.
type Resources struct {
	Patient      *Patient
	Doctor       *Employee
	Room         *Room
	Services     []DentalService
	Participants []*Employee
}

// ResourceInput carries the codes of a booking request.
type ResourceInput struct {
	PatientCode      string
	DoctorCode       string
	RoomCode         string
	ServiceCodes     []string
	ParticipantCodes []string
}

// ResourceValidator resolves booking codes to active records. It never writes.
type ResourceValidator struct {
	clinicalSpecializationID int64
}

func NewResourceValidator(clinicalSpecializationID int64) *ResourceValidator {
	return &ResourceValidator{clinicalSpecializationID: clinicalSpecializationID}
}

func (v *ResourceValidator) Resolve(ctx context.Context, repo Repository, in ResourceInput) (*Resources, error) {
	serviceCodes := uniqueCodes(in.ServiceCodes)
	if len(serviceCodes) == 0 {
		return nil, ErrServicesRequired
	}

	patient, err := repo.GetPatientByCode(ctx, strings.TrimSpace(in.PatientCode))
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, withf(ErrPatientNotFound, "patient %q not found", in.PatientCode)
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if !patient.Active {
		return nil, withf(ErrPatientInactive, "patient %q is inactive", patient.Code)
	}

	doctor, err := v.resolveEmployee(ctx, repo, in.DoctorCode, ErrDoctorNotFound, ErrDoctorInactive, "doctor")
	if err != nil {
		return nil, err
	}

	room, err := repo.GetRoomByCode(ctx, strings.TrimSpace(in.RoomCode))
	if err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			return nil, withf(ErrRoomNotFound, "room %q not found", in.RoomCode)
		}
		return nil, fmt.Errorf("load room: %w", err)
	}
	if !room.Active {
		return nil, withf(ErrRoomInactive, "room %q is inactive", room.Code)
	}

	services, err := v.resolveServices(ctx, repo, serviceCodes)
	if err != nil {
		return nil, err
	}

	var participants []*Employee
	for _, code := range uniqueCodes(in.ParticipantCodes) {
		if code == doctor.Code {
			return nil, withf(ErrInvalidParticipant, "doctor %q cannot also be a participant", code)
		}
		p, err := v.resolveEmployee(ctx, repo, code, ErrParticipantNotFound, ErrParticipantInactive, "participant")
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return &Resources{
		Patient:      patient,
		Doctor:       doctor,
		Room:         room,
		Services:     services,
		Participants: participants,
	}, nil
}

func (v *ResourceValidator) resolveEmployee(ctx context.Context, repo Repository, code string, notFound, inactive *Error, role string) (*Employee, error) {
	code = strings.TrimSpace(code)
	emp, err := repo.GetEmployeeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrEmployeeNotFound) {
			return nil, withf(notFound, "%s %q not found", role, code)
		}
		return nil, fmt.Errorf("load %s: %w", role, err)
	}
	if !emp.Active {
		return nil, withf(inactive, "%s %q is inactive", role, emp.Code)
	}
	if !emp.HasSpecialization(v.clinicalSpecializationID) {
		return nil, withf(ErrNotMedicalStaff, "%s %q is not medical staff", role, emp.Code)
	}
	return emp, nil
}

func (v *ResourceValidator) resolveServices(ctx context.Context, repo Repository, codes []string) ([]DentalService, error) {
	found, err := repo.GetServicesByCodes(ctx, codes)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	byCode := make(map[string]DentalService, len(found))
	for _, s := range found {
		byCode[s.Code] = s
	}

	services := make([]DentalService, 0, len(codes))
	for _, code := range codes {
		s, ok := byCode[code]
		if !ok {
			return nil, withf(ErrServiceNotFound, "service %q not found", code)
		}
		if !s.Active {
			return nil, withf(ErrServiceInactive, "service %q is inactive", code)
		}
		services = append(services, s)
	}
	return services, nil
}

// QualificationChecker verifies staff specializations and room certification
// against the requested services.
type QualificationChecker struct{}

func (QualificationChecker) Check(ctx context.Context, repo Repository, res *Resources) error {
	required := RequiredSpecializations(res.Services)

	if missing := missingSpecializations(res.Doctor, required); len(missing) > 0 {
		return withf(ErrNotQualified, "doctor %q is missing specializations %v", res.Doctor.Code, missing)
	}
	for _, p := range res.Participants {
		if missing := missingSpecializations(p, required); len(missing) > 0 {
			return withf(ErrNotQualified, "participant %q is missing specializations %v", p.Code, missing)
		}
	}

	certified, err := repo.GetRoomServiceIDs(ctx, res.Room.ID)
	if err != nil {
		return fmt.Errorf("load room services: %w", err)
	}
	allowed := make(map[int64]bool, len(certified))
	for _, id := range certified {
		allowed[id] = true
	}

	var incompatible []string
	for _, s := range res.Services {
		if !allowed[s.ID] {
			incompatible = append(incompatible, s.Code)
		}
	}
	if len(incompatible) > 0 {
		return withf(ErrRoomNotCompatible, "room %q is not certified for services %v", res.Room.Code, incompatible)
	}
	return nil
}

// RequiredSpecializations returns the sorted, deduplicated specializations the
// services call for.
func RequiredSpecializations(services []DentalService) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, s := range services {
		if s.SpecializationID == nil || seen[*s.SpecializationID] {
			continue
		}
		seen[*s.SpecializationID] = true
		out = append(out, *s.SpecializationID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func missingSpecializations(e *Employee, required []int64) []int64 {
	var missing []int64
	for _, id := range required {
		if !e.HasSpecialization(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func uniqueCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
